// Package tui is a terminal browser over the deployment history.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mpataki/padeploy/internal/models"
	"github.com/mpataki/padeploy/internal/storage"
)

type View int

const (
	ViewDeploymentList View = iota
	ViewDeploymentDetail
	ViewOutput
)

const listLimit = 50

// Store is the history the browser reads.
type Store interface {
	ListDeployments(limit int) ([]*models.Deployment, error)
	GetDeployment(id int64) (*models.Deployment, error)
	GetInvocations(deploymentID int64) ([]*models.Invocation, error)
	DeleteDeployment(id int64) error
}

type App struct {
	store Store

	view               View
	deployments        []*models.Deployment
	selectedIdx        int
	selectedDeployment *models.Deployment
	invocations        []*models.Invocation
	selectedInvIdx     int
	output             viewport.Model

	width  int
	height int
	err    error
}

func NewApp(store Store) *App {
	return &App{
		store:  store,
		view:   ViewDeploymentList,
		output: viewport.New(80, 20),
	}
}

func (a *App) Init() tea.Cmd {
	return a.loadDeployments
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.output.Width = msg.Width
		a.output.Height = max(msg.Height-4, 1)
		return a, nil

	case deploymentsLoadedMsg:
		a.deployments = msg.deployments
		a.err = msg.err
		if a.selectedIdx >= len(a.deployments) {
			a.selectedIdx = max(len(a.deployments)-1, 0)
		}
		return a, nil

	case deploymentDetailMsg:
		a.selectedDeployment = msg.deployment
		a.invocations = msg.invocations
		a.err = msg.err
		if a.err == nil {
			a.selectedInvIdx = 0
			a.view = ViewDeploymentDetail
		}
		return a, nil

	case deploymentDeletedMsg:
		a.err = msg.err
		return a, a.loadDeployments
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewDeploymentList:
		return a.handleListKey(msg)
	case ViewDeploymentDetail:
		return a.handleDetailKey(msg)
	case ViewOutput:
		return a.handleOutputKey(msg)
	}
	return a, nil
}

func (a *App) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case "down", "j":
		if a.selectedIdx < len(a.deployments)-1 {
			a.selectedIdx++
		}

	case "enter":
		if len(a.deployments) > 0 && a.selectedIdx < len(a.deployments) {
			return a, a.loadDeploymentDetail(a.deployments[a.selectedIdx].ID)
		}

	case "r":
		return a, a.loadDeployments

	case "d":
		if len(a.deployments) > 0 && a.selectedIdx < len(a.deployments) {
			return a, a.deleteDeployment(a.deployments[a.selectedIdx].ID)
		}
	}

	return a, nil
}

func (a *App) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewDeploymentList
		a.selectedDeployment = nil
		a.invocations = nil
		a.selectedInvIdx = 0

	case "ctrl+c":
		return a, tea.Quit

	case "up", "k":
		if a.selectedInvIdx > 0 {
			a.selectedInvIdx--
		}

	case "down", "j":
		if a.selectedInvIdx < len(a.invocations)-1 {
			a.selectedInvIdx++
		}

	case "enter", "o":
		if len(a.invocations) > 0 && a.selectedInvIdx < len(a.invocations) {
			a.output.SetContent(invocationText(a.invocations[a.selectedInvIdx]))
			a.output.GotoTop()
			a.view = ViewOutput
		}
	}

	return a, nil
}

func (a *App) handleOutputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		a.view = ViewDeploymentDetail
		return a, nil

	case "ctrl+c":
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.output, cmd = a.output.Update(msg)
	return a, cmd
}

func (a *App) View() string {
	switch a.view {
	case ViewDeploymentList:
		return a.viewDeploymentList()
	case ViewDeploymentDetail:
		return a.viewDeploymentDetail()
	case ViewOutput:
		return a.viewOutput()
	}
	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	statusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	statusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func (a *App) viewDeploymentList() string {
	s := titleStyle.Render("padeploy") + "\n\n"

	if a.err != nil {
		s += fmt.Sprintf("Error: %v\n", a.err)
	}

	if len(a.deployments) == 0 {
		s += "No deployments recorded yet.\n"
	} else {
		s += "Recent Deployments\n"
		s += "──────────────────\n"

		for i, d := range a.deployments {
			line := formatDeploymentLine(d)
			switch {
			case i == a.selectedIdx:
				line = selectedStyle.Render("▶ " + line)
			case d.Status != models.DeployStatusRunning:
				line = "  " + dimStyle.Render(line)
			default:
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[enter] view  [d] delete  [r] refresh  [q] quit")

	return s
}

func formatDeploymentLine(d *models.Deployment) string {
	return fmt.Sprintf("#%-3d %-10s %s  %-6s  %s",
		d.ID, d.Framework, formatStatus(d.Status), formatAge(d.CreatedAt), truncate(d.DomainName, 35))
}

func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func formatStatus(status models.DeployStatus) string {
	switch status {
	case models.DeployStatusRunning:
		return statusRunning.Render("● running")
	case models.DeployStatusComplete:
		return statusComplete.Render("✓ complete")
	case models.DeployStatusFailed:
		return statusFailed.Render("✗ failed")
	default:
		return string(status)
	}
}

func (a *App) viewDeploymentDetail() string {
	if a.selectedDeployment == nil {
		return "No deployment selected"
	}

	d := a.selectedDeployment

	header := fmt.Sprintf("Deployment #%d: %s", d.ID, d.DomainName)
	s := titleStyle.Render(header) + "  " + formatStatus(d.Status) + "\n\n"

	s += labelStyle.Render("Run:       ") + dimStyle.Render(d.RunID) + "\n"
	s += labelStyle.Render("Framework: ") + d.Framework + "\n"
	s += labelStyle.Render("Console:   ") + d.ConsoleID.String() + "\n"
	s += labelStyle.Render("State:     ") + string(d.State) + "\n"
	s += labelStyle.Render("Started:   ") + storage.FormatTimeAgo(d.CreatedAt) + "\n"
	if d.Error != "" {
		s += labelStyle.Render("Error:     ") + statusFailed.Render(d.Error) + "\n"
	}
	s += "\n"

	s += "Console\n"
	s += "───────\n"

	if len(a.invocations) == 0 {
		s += "(no console invocations)\n"
	} else {
		for i, inv := range a.invocations {
			line := formatInvocationLine(inv)
			if i == a.selectedInvIdx {
				line = selectedStyle.Render("▶ " + line)
			} else {
				line = "  " + line
			}
			s += line + "\n"
		}
	}

	s += "\n" + helpStyle.Render("[↑/↓] select  [enter] output  [esc] back")

	return s
}

func formatInvocationLine(inv *models.Invocation) string {
	status := "○"
	switch inv.Status {
	case models.InvocationComplete:
		status = statusComplete.Render("✓")
	case models.InvocationRunning:
		status = statusRunning.Render("●")
	case models.InvocationFailed:
		status = statusFailed.Render("✗")
	}

	what := inv.Command
	if inv.Kind == models.InvocationFetch {
		what = "(output) " + inv.Label
	}
	// Heredoc uploads span lines; show the first.
	what, _, _ = strings.Cut(what, "\n")

	line := fmt.Sprintf("%2d. %-5s %s  %s", inv.SequenceNum, inv.Kind, status, truncate(what, 60))
	if inv.StartedAt != nil && inv.CompletedAt != nil {
		line += "  " + dimStyle.Render(formatDuration(inv.CompletedAt.Sub(*inv.StartedAt)))
	}
	return line
}

func invocationText(inv *models.Invocation) string {
	var b strings.Builder
	if inv.Command != "" {
		fmt.Fprintf(&b, "$ %s\n\n", inv.Command)
	}
	if inv.Label != "" {
		fmt.Fprintf(&b, "%s\n\n", inv.Label)
	}
	if inv.Output != "" {
		b.WriteString(inv.Output)
		b.WriteString("\n")
	} else if inv.Kind == models.InvocationFetch {
		b.WriteString("(no output)\n")
	}
	if inv.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", inv.Error)
	}
	return b.String()
}

func (a *App) viewOutput() string {
	s := titleStyle.Render("Output") + "\n\n"
	s += a.output.View() + "\n"
	s += helpStyle.Render(fmt.Sprintf("%3.f%%  [↑/↓] scroll  [esc] back", a.output.ScrollPercent()*100))
	return s
}

// Messages

type deploymentsLoadedMsg struct {
	deployments []*models.Deployment
	err         error
}

type deploymentDetailMsg struct {
	deployment  *models.Deployment
	invocations []*models.Invocation
	err         error
}

type deploymentDeletedMsg struct {
	id  int64
	err error
}

// Commands

func (a *App) loadDeployments() tea.Msg {
	deployments, err := a.store.ListDeployments(listLimit)
	return deploymentsLoadedMsg{deployments: deployments, err: err}
}

func (a *App) loadDeploymentDetail(id int64) tea.Cmd {
	return func() tea.Msg {
		d, err := a.store.GetDeployment(id)
		if err != nil {
			return deploymentDetailMsg{err: err}
		}

		invs, err := a.store.GetInvocations(id)
		return deploymentDetailMsg{deployment: d, invocations: invs, err: err}
	}
}

func (a *App) deleteDeployment(id int64) tea.Cmd {
	return func() tea.Msg {
		if err := a.store.DeleteDeployment(id); err != nil {
			return deploymentDeletedMsg{err: err}
		}
		return deploymentDeletedMsg{id: id}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
