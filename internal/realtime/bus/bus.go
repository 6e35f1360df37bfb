package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobEvent is published whenever an ingest job changes stage or status.
type JobEvent struct {
	JobID       uuid.UUID `json:"job_id"`
	ContentID   uuid.UUID `json:"content_id"`
	UserID      uuid.UUID `json:"user_id"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage"`
	ProgressPct int       `json:"progress_pct"`
	ErrorCode   string    `json:"error_code,omitempty"`
	At          time.Time `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, ev JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev JobEvent)) error
	Close() error
}

type noopBus struct{}

// NewNoopBus drops every event.
func NewNoopBus() Bus { return noopBus{} }

func (noopBus) Publish(context.Context, JobEvent) error                  { return nil }
func (noopBus) StartForwarder(context.Context, func(ev JobEvent)) error { return nil }
func (noopBus) Close() error                                            { return nil }
