package services

import (
	"context"
	"time"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/realtime/bus"
)

// JobNotifier fans job lifecycle changes out to subscribers. Publishing is best effort.
type JobNotifier interface {
	JobQueued(ctx context.Context, job *types.ContentIngestJob)
	JobProgress(ctx context.Context, job *types.ContentIngestJob)
	JobFailed(ctx context.Context, job *types.ContentIngestJob)
	JobDone(ctx context.Context, job *types.ContentIngestJob)
}

type jobNotifier struct {
	bus bus.Bus
	log *logger.Logger
}

func NewJobNotifier(b bus.Bus, log *logger.Logger) JobNotifier {
	if b == nil {
		b = bus.NewNoopBus()
	}
	return &jobNotifier{bus: b, log: log.With("component", "JobNotifier")}
}

func (n *jobNotifier) JobQueued(ctx context.Context, job *types.ContentIngestJob)   { n.publish(ctx, job) }
func (n *jobNotifier) JobProgress(ctx context.Context, job *types.ContentIngestJob) { n.publish(ctx, job) }
func (n *jobNotifier) JobFailed(ctx context.Context, job *types.ContentIngestJob)   { n.publish(ctx, job) }
func (n *jobNotifier) JobDone(ctx context.Context, job *types.ContentIngestJob)     { n.publish(ctx, job) }

func (n *jobNotifier) publish(ctx context.Context, job *types.ContentIngestJob) {
	if job == nil {
		return
	}
	ev := bus.JobEvent{
		JobID:       job.ID,
		ContentID:   job.ContentID,
		UserID:      job.UserID,
		Status:      job.Status,
		Stage:       job.Stage,
		ProgressPct: job.ProgressPct(),
		ErrorCode:   job.ErrorCode,
		At:          time.Now().UTC(),
	}
	if err := n.bus.Publish(context.WithoutCancel(ctx), ev); err != nil {
		n.log.Warn("job event publish failed", "job_id", job.ID, "stage", job.Stage, "error", err)
	}
}
