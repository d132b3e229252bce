package orchestrator

import (
	"fmt"

	"github.com/mpataki/padeploy/internal/classify"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/pkg/errors"
)

var (
	ErrNoConsole        = errors.New("no bash/sh console found. Please create one in your PythonAnywhere account.")
	ErrNoWebApps        = errors.New("no web applications found. Check your application or account details!")
	ErrNoMatchingWebApp = errors.New("no matching web application found for domain")
)

// PullError is a git pull whose output classified as a conflict or error.
type PullError struct {
	Outcome         classify.PullOutcome
	SourceDirectory string
}

func (e *PullError) Error() string {
	switch e.Outcome {
	case classify.PullLocalChanges:
		return fmt.Sprintf("git pull failed: local changes detected in %s. Please commit, stash, or reset your changes.", e.SourceDirectory)
	case classify.PullUntrackedFiles:
		return fmt.Sprintf("git pull failed: untracked files detected in %s. Please add or remove the files.", e.SourceDirectory)
	default:
		return fmt.Sprintf("git pull failed: generic git error in %s. Check your repository configuration and try again.", e.SourceDirectory)
	}
}

func noMatchingWebApp(domain string) error {
	return fmt.Errorf("%w: %s", ErrNoMatchingWebApp, domain)
}

// failureOutcome names the kind of failure for the deploy.failure metric.
func failureOutcome(err error) string {
	var pullErr *PullError
	switch {
	case errors.As(err, &pullErr):
		return pullErr.Outcome.String()
	case errors.Is(err, framework.ErrUnsupported):
		return "unsupported_framework"
	case errors.Is(err, ErrNoConsole):
		return "no_console"
	case errors.Is(err, ErrNoWebApps), errors.Is(err, ErrNoMatchingWebApp):
		return "no_web_app"
	default:
		return "error"
	}
}
