package models

import "time"

// DeployState is the step a deployment has reached. States only move forward.
type DeployState string

const (
	StateStart                DeployState = "start"
	StateSessionSelected      DeployState = "session_selected"
	StateAppSelected          DeployState = "app_selected"
	StateEnvUploaded          DeployState = "env_uploaded"
	StatePulled               DeployState = "pulled"
	StateFrameworkCommandsRun DeployState = "framework_commands_run"
	StateReloaded             DeployState = "reloaded"
	StateDone                 DeployState = "done"
	StateFailed               DeployState = "failed"
)

type DeployStatus string

const (
	DeployStatusRunning  DeployStatus = "running"
	DeployStatusComplete DeployStatus = "complete"
	DeployStatusFailed   DeployStatus = "failed"
)

type Deployment struct {
	ID          int64
	RunID       string
	CreatedAt   time.Time
	CompletedAt *time.Time
	DomainName  string
	Framework   string
	ConsoleID   ConsoleID
	State       DeployState
	Status      DeployStatus
	Error       string
}
