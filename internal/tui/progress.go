// Package tui renders CLI progress and reports.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Task is a long-running operation that reports human readable steps.
type Task func(ctx context.Context, progress func(step string)) error

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Run executes task, showing a spinner with the latest step when out is a
// terminal and plain step lines otherwise. Ctrl+C cancels the task.
func Run(ctx context.Context, out io.Writer, title string, task Task) error {
	if !IsTerminal(out) {
		return runPlain(ctx, out, title, task)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgressModel(title, cancel), tea.WithOutput(out))
	go func() {
		err := task(ctx, func(step string) { p.Send(stepMsg(step)) })
		p.Send(doneMsg{err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running progress display: %w", err)
	}
	return final.(ProgressModel).Err()
}

func runPlain(ctx context.Context, out io.Writer, title string, task Task) error {
	fmt.Fprintln(out, title)
	err := task(ctx, func(step string) {
		fmt.Fprintf(out, "  - %s\n", step)
	})
	if err != nil {
		fmt.Fprintf(out, "  failed: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "  done")
	return nil
}

type stepMsg string

type doneMsg struct {
	err error
}

// ProgressModel is the bubbletea model behind Run.
type ProgressModel struct {
	title      string
	spinner    spinner.Model
	steps      []string
	cancel     context.CancelFunc
	cancelling bool
	done       bool
	err        error
}

// NewProgressModel creates a model that calls cancel on Ctrl+C.
func NewProgressModel(title string, cancel context.CancelFunc) ProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return ProgressModel{title: title, spinner: s, cancel: cancel}
}

// Err returns the task error once the model is done.
func (m ProgressModel) Err() error { return m.err }

// Done reports whether the task finished.
func (m ProgressModel) Done() bool { return m.done }

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.cancelling {
			m.cancelling = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case stepMsg:
		m.steps = append(m.steps, string(msg))
		return m, nil

	case doneMsg:
		m.done = true
		m.err = msg.err
		if m.err == nil && m.cancelling {
			m.err = context.Canceled
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	for i, step := range m.steps {
		if i == len(m.steps)-1 && !m.done {
			break
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", okStyle.Render("✓"), step))
	}

	switch {
	case m.done && m.err != nil:
		msg := m.err.Error()
		if errors.Is(m.err, context.Canceled) {
			msg = "cancelled"
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", failStyle.Render("✗"), msg))
	case m.done:
	default:
		current := "working..."
		if len(m.steps) > 0 {
			current = m.steps[len(m.steps)-1]
		}
		if m.cancelling {
			current = "cancelling..."
		}
		b.WriteString(fmt.Sprintf("  %s %s\n", m.spinner.View(), current))
		b.WriteString(dimStyle.Render("  ctrl+c to cancel"))
		b.WriteString("\n")
	}
	return b.String()
}
