package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/docker/go-units"

	"github.com/mwinckel/scribe/internal/eta"
	"github.com/mwinckel/scribe/internal/job"
	"github.com/mwinckel/scribe/internal/tracker"
)

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status     lipgloss.Color
	Success    lipgloss.Color
	Error      lipgloss.Color
	Hint       lipgloss.Color
	ProgressBg lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Status:     lipgloss.Color("#5FAFD7"), // light blue
	Success:    lipgloss.Color("#00D787"), // green
	Error:      lipgloss.Color("#FF005F"), // red
	Hint:       lipgloss.Color("#6C6C6C"), // dim gray
	ProgressBg: lipgloss.Color("#3A3A3A"), // dark gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// trackerEventMsg carries one tracker event into the UI loop.
type trackerEventMsg tracker.Event

// opDoneMsg reports the outcome of the upload/start operation running
// behind the UI.
type opDoneMsg struct{ err error }

// progressModel is the bubbletea model following one tracked job.
type progressModel struct {
	tracker  *tracker.Tracker
	events   <-chan tracker.Event
	progress progress.Model
	theme    Theme

	snap     job.Snapshot
	upload   *eta.UploadStats
	estimate *eta.StageEstimate

	op func(context.Context) error

	done     bool
	quitting bool
	err      error
}

func newProgressModel(t *tracker.Tracker, op func(context.Context) error) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		tracker:  t,
		events:   t.Events(),
		progress: prog,
		theme:    defaultTheme,
		snap:     t.Snapshot(),
		op:       op,
	}
}

// Init starts the event listener and, when present, the upload/start
// operation.
func (m progressModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.waitEvent(), m.progress.Init()}
	if m.op != nil {
		op := m.op
		cmds = append(cmds, func() tea.Msg {
			return opDoneMsg{err: op(context.Background())}
		})
	}
	return tea.Batch(cmds...)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case opDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case trackerEventMsg:
		if msg.Err != nil {
			m.err = msg.Err
		}
		m.snap = msg.Snapshot
		if msg.Upload != nil {
			m.upload = msg.Upload
		}
		if msg.Estimate != nil {
			m.estimate = msg.Estimate
			m.upload = nil
		}

		if m.snap.Status.Terminal() {
			m.done = true
			if m.snap.Status == job.StageFailed && m.err == nil {
				if m.snap.Error != "" {
					m.err = fmt.Errorf("%s", m.snap.Error)
				} else {
					m.err = fmt.Errorf("job failed with unknown error")
				}
			}
			return m, tea.Quit
		}
		return m, m.waitEvent()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.upload != nil {
		return m.uploadView()
	}
	if m.estimate != nil {
		return m.transcriptionView()
	}

	return "Starting...\n"
}

func (m progressModel) uploadView() string {
	u := m.upload
	status := m.theme.statusStyle().Render("[uploading]")
	bar := m.progress.ViewAs(float64(u.Percent) / 100)

	detail := fmt.Sprintf("%s / %s",
		units.HumanSize(float64(u.BytesLoaded)),
		units.HumanSize(float64(u.BytesTotal)))
	if u.SpeedBytesPerSec > 0 {
		detail += fmt.Sprintf("  %s/s", units.HumanSize(u.SpeedBytesPerSec))
	}
	if u.ETASeconds > 0 {
		detail += "  ETA " + formatETA(u.ETASeconds)
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to cancel the upload")
	return fmt.Sprintf("%s %s %d%%\n%s\n%s\n", status, bar, u.Percent, detail, hint)
}

func (m progressModel) transcriptionView() string {
	e := m.estimate
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", stageLabel(e.Stage)))
	bar := m.progress.ViewAs(float64(e.Hint) / 100)

	detail := fmt.Sprintf("%d%%", e.Hint)
	if e.RemainingSeconds > 0 {
		detail += "  ETA " + formatETA(e.RemainingSeconds)
	}

	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background ('scribe watch' re-attaches)")
	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, detail, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		jobID := m.snap.JobID
		if jobID == "" {
			jobID = m.snap.JobKey
		}
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'scribe watch' to re-attach or 'scribe status' to check on it.\n", jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Failed: %s\n", m.err))
	}

	var output string
	output += m.theme.completedStyle().Render("✓ Completed") + "\n\n"
	if m.snap.FileName != "" {
		output += fmt.Sprintf("  File:      %s\n", m.snap.FileName)
	}
	if n := len(m.snap.TranscriptSegments); n > 0 {
		output += fmt.Sprintf("  Segments:  %d\n", n)
	}
	if s := m.snap.SpeakerSummary; s != nil {
		output += fmt.Sprintf("  Speakers:  %d\n", s.TotalSpeakers)
	}
	output += "\nUse 'scribe result' to print the transcript.\n"
	return output
}

// waitEvent blocks on the tracker's event stream.
func (m progressModel) waitEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return trackerEventMsg(e)
	}
}

// stageLabel renders backend stage names for humans.
func stageLabel(s job.Stage) string {
	switch s {
	case job.StageExtractingAudio:
		return "extracting audio"
	case job.StageIdentifyingSpeakers:
		return "identifying speakers"
	default:
		return string(s)
	}
}

// formatETA renders a second count as 4m05s / 1h12m / 45s.
func formatETA(seconds int) string {
	d := time.Duration(seconds) * time.Second
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// runProgressUI runs the interactive progress view over a tracker. op, when
// non-nil, is the upload/start operation to drive behind the view. Returns
// nil on success or Ctrl+C (job continues in background), the job error on
// failure.
func runProgressUI(t *tracker.Tracker, op func(context.Context) error) error {
	model := newProgressModel(t, op)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
