package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/yungbote/neurobridge-content/internal/data/repos/jobs"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	jobrt "github.com/yungbote/neurobridge-content/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/services"
)

// Runner executes one attempt of a job. content_ingest.Pipeline satisfies it.
type Runner interface {
	Run(jc *jobrt.Context) error
}

/*
Pool claims pending jobs and runs them on a bounded ants pool.
One dispatcher goroutine polls the queue; every claimed job becomes one task that owns the job
until it completes, fails for good, or the pool shuts down. Several processes may share the
queue since claims go through SKIP LOCKED.
*/
type Pool struct {
	log     *logger.Logger
	repo    jobs.ContentIngestJobRepo
	runner  Runner
	notify  services.JobNotifier
	cfg     Config
	permits *jobrt.Permits

	tasks    *ants.Pool
	submit   func(task func()) error
	inflight atomic.Int64
	wg       sync.WaitGroup
}

func New(baseLog *logger.Logger, repo jobs.ContentIngestJobRepo, runner Runner, notify services.JobNotifier, cfg Config) (*Pool, error) {
	if repo == nil || runner == nil {
		return nil, errors.New("worker: repo and runner required")
	}
	cfg.defaults()
	log := baseLog.With("component", "WorkerPool", "worker_id", cfg.WorkerID)
	tasks, err := ants.NewPool(cfg.MaxConcurrent,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(v any) {
			log.Error("worker task escaped recovery", "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("worker: task pool: %w", err)
	}
	return &Pool{
		log:     log,
		repo:    repo,
		runner:  runner,
		notify:  notify,
		cfg:     cfg,
		permits: jobrt.NewPermits(int64(cfg.IngestPermits), int64(cfg.AnalysisPermits)),
		tasks:   tasks,
		submit:  tasks.Submit,
	}, nil
}

func (p *Pool) WorkerID() string { return p.cfg.WorkerID }

// Run blocks until ctx is cancelled, then waits for in-flight tasks and releases whatever this
// worker still holds back to pending.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started",
		"max_concurrent", p.cfg.MaxConcurrent,
		"max_retries", p.cfg.MaxRetries,
		"poll_interval", p.cfg.PollInterval.String(),
	)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return nil
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

func (p *Pool) dispatch(ctx context.Context) {
	for p.inflight.Load() < int64(p.cfg.MaxConcurrent) {
		if ctx.Err() != nil {
			return
		}
		job, err := p.repo.ClaimNextPending(dbctx.Context{Ctx: ctx}, p.cfg.WorkerID)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn("claim failed", "error", err)
			}
			return
		}
		if job == nil {
			return
		}
		p.inflight.Add(1)
		p.wg.Add(1)
		if err := p.submit(func() {
			defer p.wg.Done()
			defer p.inflight.Add(-1)
			p.execute(ctx, job)
		}); err != nil {
			p.inflight.Add(-1)
			p.wg.Done()
			p.requeue(job, err)
			return
		}
	}
}

// requeue hands a claimed job straight back when no task slot took it. ants frees a slot only
// after the previous task function returns, so a full pool can briefly refuse work.
func (p *Pool) requeue(job *types.ContentIngestJob, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ReleaseTimeout)
	defer cancel()
	released, err := p.repo.ReleaseJob(dbctx.Context{Ctx: ctx}, job.ID, p.cfg.WorkerID)
	if err != nil {
		p.log.Error("submit failed; release failed", "job_id", job.ID, "submit_error", cause, "error", err)
		return
	}
	p.log.Warn("submit failed; job released", "job_id", job.ID, "released", released, "error", cause)
}

func (p *Pool) execute(ctx context.Context, job *types.ContentIngestJob) {
	jc := jobrt.NewContext(ctx, job, p.repo, p.notify, p.permits)
	log := p.log.With("job_id", job.ID, "content_id", job.ContentID)
	log.Info("job claimed", "attempt_count", job.AttemptCount)

	var lastDetail string
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if err := jc.Attempt(attempt); err != nil {
			log.Warn("record attempt failed", "attempt", attempt, "error", err)
		}
		stack, err := p.runOnce(jc)
		if err == nil {
			log.Info("job completed", "attempt", attempt, "fallback_used", job.FallbackUsed)
			return
		}
		if ctx.Err() != nil {
			log.Info("job interrupted by shutdown", "attempt", attempt, "stage", job.Stage)
			return
		}
		lastDetail = p.detail(err, stack)
		log.Warn("job attempt failed", "attempt", attempt, "stage", job.Stage, "error", err)
		if mErr := jc.Error(jobstate.ErrorCodePipelineError, lastDetail); mErr != nil {
			log.Warn("record error failed", "error", mErr)
		}
		if attempt < p.cfg.MaxRetries && !sleep(ctx, p.cfg.backoff(attempt)) {
			return
		}
	}
	if err := jc.Fail(jobstate.ErrorCodePipelineFailed, lastDetail); err != nil {
		log.Error("mark failed failed", "error", err)
		return
	}
	log.Warn("job failed", "attempts", p.cfg.MaxRetries)
}

// runOnce converts a panic into an error and returns its stack alongside.
func (p *Pool) runOnce(jc *jobrt.Context) (stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = debug.Stack()
		}
	}()
	return nil, p.runner.Run(jc)
}

func (p *Pool) detail(err error, stack []byte) string {
	d := err.Error()
	if len(stack) > 0 {
		d += "\n" + string(stack)
	}
	if len(d) > p.cfg.ErrorDetailMax {
		d = strings.ToValidUTF8(d[:p.cfg.ErrorDetailMax], "")
	}
	return d
}

func (p *Pool) shutdown() {
	p.log.Info("worker pool stopping", "inflight", p.inflight.Load())
	p.wg.Wait()
	p.tasks.Release()

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ReleaseTimeout)
	defer cancel()
	n, err := p.repo.ReleaseWorkerJobs(dbctx.Context{Ctx: ctx}, p.cfg.WorkerID)
	if err != nil {
		p.log.Error("release worker jobs failed", "error", err)
		return
	}
	p.log.Info("worker pool stopped", "released", n)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
