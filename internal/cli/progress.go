package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/timeport-io/timeport/internal/client"
	"github.com/timeport-io/timeport/internal/models"
)

const pollInterval = time.Second

// maxErrorLines caps how many row errors the final view prints.
const maxErrorLines = 10

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

// tickMsg triggers polling the job status (websocket fallback mode)
type tickMsg time.Time

// watchOpenMsg carries an established websocket subscription
type watchOpenMsg struct {
	ch     <-chan models.ImportJob
	cancel context.CancelFunc
}

// watchFailedMsg switches the UI to polling mode
type watchFailedMsg struct{}

// watchClosedMsg signals the server closed the subscription
type watchClosedMsg struct{}

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *models.ImportJob
	err error
}

// progressModel is the bubbletea model for import job progress.
type progressModel struct {
	client      *client.Client
	jobID       string
	job         *models.ImportJob
	updates     <-chan models.ImportJob
	cancelWatch context.CancelFunc
	progress    progress.Model
	theme       Theme
	done        bool
	quitting    bool
	err         error
}

// newProgressModel creates a new progress model.
func newProgressModel(c *client.Client, job *models.ImportJob) progressModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return progressModel{
		client:   c,
		jobID:    job.JobID(),
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init opens the websocket subscription and starts the progress bar.
func (m progressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startWatch(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancelWatch != nil {
				m.cancelWatch()
			}
			return m, tea.Quit
		}

	case watchOpenMsg:
		m.updates = msg.ch
		m.cancelWatch = msg.cancel
		return m, readUpdate(m.updates)

	case watchFailedMsg:
		// Server without websocket support, or a proxy in between.
		// Fall back to plain polling.
		return m, tickCmd()

	case watchClosedMsg:
		// The channel is closed; poll from here on.
		m.updates = nil
		if m.cancelWatch != nil {
			m.cancelWatch()
			m.cancelWatch = nil
		}
		return m, m.fetchJob()

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.job = msg.job

		if m.job.Status.Terminal() {
			m.done = true
			if m.job.Status == models.JobError {
				m.err = fmt.Errorf("%s", m.job.StatusMessage)
			}
			if m.cancelWatch != nil {
				m.cancelWatch()
			}
			return m, tea.Quit
		}

		if m.updates != nil {
			return m, readUpdate(m.updates)
		}
		return m, tickCmd()

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

// renderContent builds the display string.
func (m progressModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	if m.job == nil {
		return "Loading job status...\n"
	}

	var pct float64
	if m.job.TotalEntities > 0 {
		pct = float64(m.job.ProcessedEntities) / float64(m.job.TotalEntities)
		if pct > 1 {
			pct = 1
		}
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	progressBar := m.progress.ViewAs(pct)
	counts := fmt.Sprintf("%d/%d rows", m.job.ProcessedEntities, m.job.TotalEntities)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, progressBar, counts, hint)
}

// finalView renders the completion message.
func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'timeport jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Import failed: %s\n", m.err))
	}

	if m.job == nil {
		return m.theme.completedStyle().Render("✓ Completed\n")
	}

	var output string
	switch m.job.Status {
	case models.JobCanceled:
		output += m.theme.errorStyle().Render("✗ Canceled") + "\n"
	default:
		output += m.theme.completedStyle().Render("✓ Completed") + "\n"
	}
	output += fmt.Sprintf("\n  Rows imported: %d\n", m.job.ProcessedEntities)
	output += fmt.Sprintf("  Rows read:     %d\n", m.job.TotalEntities)

	if n := len(m.job.EntitiesError); n > 0 {
		output += m.theme.errorStyle().Render(fmt.Sprintf("\nRow errors (%d):\n", n))
		keys := make([]string, 0, n)
		for k := range m.job.EntitiesError {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > maxErrorLines {
			keys = keys[:maxErrorLines]
		}
		for _, k := range keys {
			output += fmt.Sprintf("  • %s: %s\n", k, m.job.EntitiesError[k])
		}
		if n > maxErrorLines {
			output += m.theme.hintStyle().Render(fmt.Sprintf("  ... and %d more, see 'timeport jobs %s'\n", n-maxErrorLines, m.jobID))
		}
	}
	return output
}

// startWatch opens the websocket subscription for job updates.
func (m progressModel) startWatch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := m.client.WatchJob(ctx, m.jobID)
		if err != nil {
			cancel()
			return watchFailedMsg{}
		}
		return watchOpenMsg{ch: ch, cancel: cancel}
	}
}

// readUpdate waits for the next snapshot from the subscription.
// Runs as a command to avoid blocking Update().
func readUpdate(ch <-chan models.ImportJob) tea.Cmd {
	return func() tea.Msg {
		job, ok := <-ch
		if !ok {
			return watchClosedMsg{}
		}
		return jobUpdateMsg{job: &job}
	}
}

// fetchJob fetches the current job status from the server.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.jobID)
		if err == nil && job == nil {
			err = fmt.Errorf("job not found: %s", m.jobID)
		}
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress runs the interactive progress UI for an import job.
// Returns nil on success or Ctrl+C (job continues in background), error on
// job failure.
func RunJobProgress(c *client.Client, job *models.ImportJob) error {
	model := newProgressModel(c, job)
	p := tea.NewProgram(model)

	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(progressModel); ok {
		// Ctrl+C leaves the job running in the background - not an error.
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}

	return nil
}
