package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/neurobridge-content/internal/data/repos/jobs"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/services"
)

/*
Context is the execution handle for one claimed ingest job.
It wraps:
	- the task context (cancelled when the pool shuts down),
	- the in-memory job row,
	- the permit pools shared by every task of the worker,
	- the notifier side channel.
Pipelines never write content_ingest_job directly. They go through this object.
*/
type Context struct {
	Ctx    context.Context
	Job    *types.ContentIngestJob
	Repo   jobs.ContentIngestJobRepo
	Notify services.JobNotifier

	permits *Permits
}

// Permits bounds concurrency across tasks: Ingest covers network fetches and transcription,
// Analyze covers embedding and LLM calls.
type Permits struct {
	Ingest  *semaphore.Weighted
	Analyze *semaphore.Weighted
}

func NewPermits(ingest, analyze int64) *Permits {
	if ingest <= 0 {
		ingest = 1
	}
	if analyze <= 0 {
		analyze = 1
	}
	return &Permits{Ingest: semaphore.NewWeighted(ingest), Analyze: semaphore.NewWeighted(analyze)}
}

func NewContext(ctx context.Context, job *types.ContentIngestJob, repo jobs.ContentIngestJobRepo, notify services.JobNotifier, permits *Permits) *Context {
	if permits == nil {
		permits = NewPermits(1, 1)
	}
	c := &Context{Ctx: ctx, Job: job, Repo: repo, Notify: notify, permits: permits}
	if job != nil && job.TraceID != "" {
		c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: job.TraceID, RequestID: job.ID.String()})
	}
	return c
}

func (c *Context) dbc() dbctx.Context { return dbctx.Context{Ctx: c.Ctx} }

// Ingest runs fn while holding one ingest permit.
func (c *Context) Ingest(fn func(ctx context.Context) error) error {
	return withPermit(c.Ctx, c.permits.Ingest, fn)
}

// Analyze runs fn while holding one analysis permit.
func (c *Context) Analyze(fn func(ctx context.Context) error) error {
	return withPermit(c.Ctx, c.permits.Analyze, fn)
}

func withPermit(ctx context.Context, sem *semaphore.Weighted, fn func(ctx context.Context) error) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)
	return fn(ctx)
}

/*
Stage persists a new stage label and publishes it.
The in-memory row is updated only after the write succeeds so progress never runs ahead of
storage.
*/
func (c *Context) Stage(stage string) error {
	if c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	if err := c.Repo.SetStage(c.dbc(), c.Job.ID, stage); err != nil {
		return err
	}
	c.Job.Stage = stage
	c.Job.UpdatedAt = time.Now()
	if c.Notify != nil {
		c.Notify.JobProgress(c.Ctx, c.Job)
	}
	return nil
}

// Attempt records the 1-based attempt number about to run.
func (c *Context) Attempt(n int) error {
	if err := c.Repo.SetAttemptCount(c.dbc(), c.Job.ID, n); err != nil {
		return err
	}
	c.Job.AttemptCount = n
	return nil
}

// FallbackUsed annotates the job as having gone through a degraded provider.
func (c *Context) FallbackUsed() error {
	if c.Job.FallbackUsed {
		return nil
	}
	if err := c.Repo.MarkFallbackUsed(c.dbc(), c.Job.ID); err != nil {
		return err
	}
	c.Job.FallbackUsed = true
	if c.Job.ErrorCode == "" {
		c.Job.ErrorCode = jobstate.ErrorCodeFallbackUsed
	}
	return nil
}

/*
Error records a retryable failure. The job stays running.
Writes use a context detached from task cancellation so a shutdown mid-attempt still leaves
the error on the row.
*/
func (c *Context) Error(code, detail string) error {
	dbc, cancel := c.detached()
	defer cancel()
	if err := c.Repo.MarkError(dbc, c.Job.ID, code, detail); err != nil {
		return err
	}
	c.Job.ErrorCode, c.Job.ErrorDetail = code, detail
	return nil
}

// Fail marks the job terminally failed and publishes it.
func (c *Context) Fail(code, detail string) error {
	dbc, cancel := c.detached()
	defer cancel()
	if err := c.Repo.MarkFailed(dbc, c.Job.ID, code, detail); err != nil {
		return err
	}
	now := time.Now()
	c.Job.Status = jobstate.StatusFailed
	c.Job.ErrorCode, c.Job.ErrorDetail = code, detail
	c.Job.FinishedAt = &now
	if c.Notify != nil {
		c.Notify.JobFailed(c.Ctx, c.Job)
	}
	return nil
}

// Succeed marks the job completed at stage done and publishes it.
func (c *Context) Succeed() error {
	if err := c.Repo.MarkCompleted(c.dbc(), c.Job.ID); err != nil {
		return err
	}
	now := time.Now()
	c.Job.Status = jobstate.StatusCompleted
	c.Job.Stage = jobstate.StageDone
	c.Job.ErrorDetail = ""
	if !c.Job.FallbackUsed {
		c.Job.ErrorCode = ""
	}
	c.Job.FinishedAt = &now
	if c.Notify != nil {
		c.Notify.JobDone(c.Ctx, c.Job)
	}
	return nil
}

func (c *Context) detached() (dbctx.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Ctx), 10*time.Second)
	return dbctx.Context{Ctx: ctx}, cancel
}
