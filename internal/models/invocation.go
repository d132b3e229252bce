package models

import "time"

type InvocationKind string

const (
	InvocationSend  InvocationKind = "send"
	InvocationFetch InvocationKind = "fetch"
)

type InvocationStatus string

const (
	InvocationRunning  InvocationStatus = "running"
	InvocationComplete InvocationStatus = "complete"
	InvocationFailed   InvocationStatus = "failed"
)

// Invocation is one round trip with the console: either a command sent or an
// output snapshot fetched.
type Invocation struct {
	ID           int64
	DeploymentID int64
	SequenceNum  int
	Kind         InvocationKind
	Command      string
	Label        string // describes the expected outcome, display only
	Output       string
	Status       InvocationStatus
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Error        string
}
