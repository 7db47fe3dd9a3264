package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/DeusData/ms2cc/internal/pipeline"
)

const pollInterval = 100 * time.Millisecond

// Source is polled for live counters.
type Source interface {
	Snapshot() pipeline.Snapshot
}

type progressModel struct {
	title      string
	src        Source
	done       <-chan struct{}
	cancel     func()
	spinner    spinner.Model
	prog       progress.Model
	snap       pipeline.Snapshot
	width      int
	stopped    bool
	cancelling bool
}

type tickMsg time.Time
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that polls src until done is
// closed. ctrl+c calls cancel and keeps polling until the run stops.
func NewProgressModel(title string, src Source, done <-chan struct{}, cancel func()) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 60

	return &progressModel{
		title:   title,
		src:     src,
		done:    done,
		cancel:  cancel,
		spinner: sp,
		prog:    prog,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.waitDone())
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *progressModel) waitDone() tea.Cmd {
	return func() tea.Msg {
		<-m.done
		return doneMsg{}
	}
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.stopped {
			return m, nil
		}
		m.snap = m.src.Snapshot()
		return m, tick()
	case doneMsg:
		m.snap = m.src.Snapshot()
		m.stopped = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.stopped {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = max(msg.Width-4, 10)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	header := fmt.Sprintf("%s (%s)", m.title, m.snap.Phase)
	if m.cancelling {
		header = fmt.Sprintf("%s (cancelling)", m.title)
	}
	if m.stopped {
		header = "done: " + m.title
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	b.WriteString(dim.Render(truncate(phaseDetail(m.snap), m.width-2)))
	b.WriteString("\n\n")
	b.WriteString(m.prog.ViewAs(m.snap.Fraction()))
	b.WriteString("\n")
	return b.String()
}

func phaseDetail(s pipeline.Snapshot) string {
	switch s.Phase {
	case pipeline.PhaseIndexing:
		return fmt.Sprintf("  %d directories, %d files indexed", s.DirsVisited, s.FilesIndexed)
	case pipeline.PhaseReading:
		return fmt.Sprintf("  %d files indexed, reading log", s.FilesIndexed)
	case pipeline.PhaseResolving, pipeline.PhaseDone:
		return fmt.Sprintf("  %d/%d lines, %d invocations, %d entries, %d diagnostics",
			s.LinesProcessed, s.LinesTotal, s.Invocations, s.EntriesResolved, s.Diagnostics)
	}
	return "  starting"
}

// RunWithProgress runs work while a progress display polls src on out.
// The display quits when work returns; work's error wins over a display error.
func RunWithProgress(out io.Writer, title string, src Source, cancel func(), work func() error) error {
	done := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- work()
		close(done)
	}()

	program := tea.NewProgram(NewProgressModel(title, src, done, cancel), tea.WithOutput(out))
	_, uiErr := program.Run()
	err := <-errCh
	if err != nil {
		return err
	}
	return uiErr
}
