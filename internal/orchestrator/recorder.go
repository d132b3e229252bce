package orchestrator

import (
	"context"
	"time"

	"github.com/mpataki/padeploy/internal/console"
	"github.com/mpataki/padeploy/internal/framework"
	"github.com/mpataki/padeploy/internal/models"
	"go.uber.org/zap"
)

// recorder writes one invocation row per console round trip of a deployment.
// Write failures are logged and never fail the deployment.
type recorder struct {
	inner        framework.Console
	history      History
	deploymentID int64
	log          *zap.SugaredLogger
	seq          int
}

var _ framework.Console = (*recorder)(nil)

func (r *recorder) Send(ctx context.Context, id models.ConsoleID, command, label string) error {
	inv := r.begin(models.InvocationSend, command, label)
	err := r.inner.Send(ctx, id, command, label)
	r.finish(inv, "", err)
	return err
}

func (r *recorder) LatestOutput(ctx context.Context, id models.ConsoleID, label string) (console.Snapshot, error) {
	inv := r.begin(models.InvocationFetch, "", label)
	snap, err := r.inner.LatestOutput(ctx, id, label)
	r.finish(inv, snap.Output, err)
	return snap, err
}

func (r *recorder) begin(kind models.InvocationKind, command, label string) *models.Invocation {
	r.seq++
	now := time.Now()
	inv := &models.Invocation{
		DeploymentID: r.deploymentID,
		SequenceNum:  r.seq,
		Kind:         kind,
		Command:      command,
		Label:        label,
		Status:       models.InvocationRunning,
		StartedAt:    &now,
	}

	id, err := r.history.CreateInvocation(inv)
	if err != nil {
		r.log.Warnf("Failed to record console invocation: %v", err)
		return nil
	}
	inv.ID = id
	return inv
}

func (r *recorder) finish(inv *models.Invocation, output string, err error) {
	if inv == nil {
		return
	}

	now := time.Now()
	inv.CompletedAt = &now
	inv.Output = output
	inv.Status = models.InvocationComplete
	if err != nil {
		inv.Status = models.InvocationFailed
		inv.Error = err.Error()
	}

	if err := r.history.UpdateInvocation(inv); err != nil {
		r.log.Warnf("Failed to record console invocation: %v", err)
	}
}
