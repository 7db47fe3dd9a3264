package pipeline

import "sync/atomic"

// Phase identifies the stage a run is in.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseIndexing
	PhaseReading
	PhaseResolving
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIndexing:
		return "indexing"
	case PhaseReading:
		return "reading"
	case PhaseResolving:
		return "resolving"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Progress holds live counters for a run. Writers never block; readers poll
// Snapshot.
type Progress struct {
	phase           atomic.Int32
	dirsVisited     atomic.Int64
	filesIndexed    atomic.Int64
	linesRead       atomic.Int64
	linesTotal      atomic.Int64
	linesProcessed  atomic.Int64
	invocations     atomic.Int64
	entriesResolved atomic.Int64
	diagnostics     atomic.Int64
}

// Snapshot is a point-in-time copy of Progress.
type Snapshot struct {
	Phase           Phase
	DirsVisited     int64
	FilesIndexed    int64
	LinesRead       int64
	LinesTotal      int64 // logical lines to process, known once reading is done
	LinesProcessed  int64
	Invocations     int64
	EntriesResolved int64
	Diagnostics     int64
}

// Fraction returns how far resolving has come, in [0, 1].
func (s Snapshot) Fraction() float64 {
	if s.Phase == PhaseDone {
		return 1
	}
	if s.LinesTotal == 0 {
		return 0
	}
	return float64(s.LinesProcessed) / float64(s.LinesTotal)
}

func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Phase:           Phase(p.phase.Load()),
		DirsVisited:     p.dirsVisited.Load(),
		FilesIndexed:    p.filesIndexed.Load(),
		LinesRead:       p.linesRead.Load(),
		LinesTotal:      p.linesTotal.Load(),
		LinesProcessed:  p.linesProcessed.Load(),
		Invocations:     p.invocations.Load(),
		EntriesResolved: p.entriesResolved.Load(),
		Diagnostics:     p.diagnostics.Load(),
	}
}

func (p *Progress) setPhase(ph Phase) { p.phase.Store(int32(ph)) }

// AddDirsVisited and AddFilesIndexed let Progress serve as the indexer's counter sink.
func (p *Progress) AddDirsVisited(n int64)  { p.dirsVisited.Add(n) }
func (p *Progress) AddFilesIndexed(n int64) { p.filesIndexed.Add(n) }
