package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

func newRepo(t *testing.T) (ContentIngestJobRepo, dbctx.Context) {
	t.Helper()
	db := testutil.SQLite(t)
	return NewContentIngestJobRepo(db, testutil.Logger(t)), dbctx.Context{Ctx: context.Background()}
}

func TestCreateOrReuseReturnsExistingActiveJob(t *testing.T) {
	repo, dbc := newRepo(t)
	userID, contentID := uuid.New(), uuid.New()

	first, err := repo.CreateOrReuse(dbc, userID, contentID, "v1", false)
	if err != nil {
		t.Fatalf("CreateOrReuse: %v", err)
	}
	if first.Status != jobstate.StatusPending || first.Stage != jobstate.StageQueued {
		t.Fatalf("new job: status=%s stage=%s", first.Status, first.Stage)
	}

	second, err := repo.CreateOrReuse(dbc, uuid.New(), contentID, "v1", false)
	if err != nil {
		t.Fatalf("CreateOrReuse (again): %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reuse of %s, got %s", first.ID, second.ID)
	}
	if second.UserID != userID {
		t.Fatalf("reuse must not change owner")
	}

	other, err := repo.CreateOrReuse(dbc, userID, contentID, "v2", false)
	if err != nil {
		t.Fatalf("CreateOrReuse (v2): %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different pipeline version must create a new job")
	}
}

func TestCreateOrReuseResetsFailedAndForced(t *testing.T) {
	repo, dbc := newRepo(t)
	contentID := uuid.New()
	requester := uuid.New()

	job, err := repo.CreateOrReuse(dbc, uuid.New(), contentID, "v1", false)
	if err != nil {
		t.Fatalf("CreateOrReuse: %v", err)
	}
	if _, err := repo.ClaimNextPending(dbc, "w1"); err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	_ = repo.SetAttemptCount(dbc, job.ID, 3)
	if err := repo.MarkFailed(dbc, job.ID, jobstate.ErrorCodePipelineFailed, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	reset, err := repo.CreateOrReuse(dbc, requester, contentID, "v1", false)
	if err != nil {
		t.Fatalf("CreateOrReuse (failed): %v", err)
	}
	if reset.ID != job.ID {
		t.Fatalf("failed job should be reset in place")
	}
	if reset.Status != jobstate.StatusPending || reset.AttemptCount != 0 || reset.ErrorCode != "" ||
		reset.ErrorDetail != "" || reset.StartedAt != nil || reset.FinishedAt != nil || reset.TraceID != "" {
		t.Fatalf("reset job not clean: %+v", reset)
	}
	if reset.UserID != requester {
		t.Fatalf("reset job should belong to requester")
	}

	if _, err := repo.ClaimNextPending(dbc, "w1"); err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if err := repo.MarkCompleted(dbc, job.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	kept, err := repo.CreateOrReuse(dbc, requester, contentID, "v1", false)
	if err != nil {
		t.Fatalf("CreateOrReuse (completed): %v", err)
	}
	if kept.Status != jobstate.StatusCompleted {
		t.Fatalf("completed job without force must be returned as-is, got %s", kept.Status)
	}
	forced, err := repo.CreateOrReuse(dbc, requester, contentID, "v1", true)
	if err != nil {
		t.Fatalf("CreateOrReuse (force): %v", err)
	}
	if forced.Status != jobstate.StatusPending || forced.Stage != jobstate.StageQueued {
		t.Fatalf("forced rebuild should reset: %+v", forced)
	}
}

func TestClaimNextPendingFIFO(t *testing.T) {
	repo, dbc := newRepo(t)

	empty, err := repo.ClaimNextPending(dbc, "w1")
	if err != nil {
		t.Fatalf("ClaimNextPending (empty): %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil job on empty queue")
	}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		j, err := repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), "v1", false)
		if err != nil {
			t.Fatalf("CreateOrReuse: %v", err)
		}
		ids = append(ids, j.ID)
		time.Sleep(5 * time.Millisecond)
	}

	for i, want := range ids {
		got, err := repo.ClaimNextPending(dbc, "w1")
		if err != nil {
			t.Fatalf("ClaimNextPending #%d: %v", i, err)
		}
		if got == nil || got.ID != want {
			t.Fatalf("claim #%d: want %s got %+v", i, want, got)
		}
		if got.Status != jobstate.StatusRunning || got.TraceID != "w1" || got.StartedAt == nil {
			t.Fatalf("claimed job not stamped: %+v", got)
		}
	}
	if j, _ := repo.ClaimNextPending(dbc, "w1"); j != nil {
		t.Fatalf("queue should be drained")
	}
}

func TestFallbackAnnotationSurvivesCompletion(t *testing.T) {
	repo, dbc := newRepo(t)
	job, _ := repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), "v1", false)
	_, _ = repo.ClaimNextPending(dbc, "w1")

	if err := repo.MarkError(dbc, job.ID, jobstate.ErrorCodePipelineError, "transient"); err != nil {
		t.Fatalf("MarkError: %v", err)
	}
	if err := repo.MarkFallbackUsed(dbc, job.ID); err != nil {
		t.Fatalf("MarkFallbackUsed: %v", err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.ErrorCode != jobstate.ErrorCodePipelineError || !got.FallbackUsed {
		t.Fatalf("fallback must not overwrite an existing error code: %+v", got)
	}

	if err := repo.MarkCompleted(dbc, job.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ = repo.GetByID(dbc, job.ID)
	if got.Status != jobstate.StatusCompleted || got.Stage != jobstate.StageDone || got.FinishedAt == nil {
		t.Fatalf("not completed: %+v", got)
	}
	if got.ErrorCode != jobstate.ErrorCodeFallbackUsed || got.ErrorDetail != "" {
		t.Fatalf("completed degraded job: code=%q detail=%q", got.ErrorCode, got.ErrorDetail)
	}
	if got.ProgressPct() != 100 {
		t.Fatalf("progress: got %d", got.ProgressPct())
	}
}

func TestMarkCompletedClearsErrorsWithoutFallback(t *testing.T) {
	repo, dbc := newRepo(t)
	job, _ := repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), "v1", false)
	_, _ = repo.ClaimNextPending(dbc, "w1")
	_ = repo.MarkError(dbc, job.ID, jobstate.ErrorCodePipelineError, "transient")
	if err := repo.MarkCompleted(dbc, job.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.ErrorCode != "" || got.ErrorDetail != "" {
		t.Fatalf("expected cleared error fields: %+v", got)
	}
}

func TestReleaseWorkerJobs(t *testing.T) {
	repo, dbc := newRepo(t)
	for i := 0; i < 2; i++ {
		_, _ = repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), "v1", false)
	}
	mine, _ := repo.ClaimNextPending(dbc, "w1")
	theirs, _ := repo.ClaimNextPending(dbc, "w2")

	n, err := repo.ReleaseWorkerJobs(dbc, "w1")
	if err != nil {
		t.Fatalf("ReleaseWorkerJobs: %v", err)
	}
	if n != 1 {
		t.Fatalf("released: want 1 got %d", n)
	}
	got, _ := repo.GetByID(dbc, mine.ID)
	if got.Status != jobstate.StatusPending || got.TraceID != "" {
		t.Fatalf("released job: %+v", got)
	}
	other, _ := repo.GetByID(dbc, theirs.ID)
	if other.Status != jobstate.StatusRunning {
		t.Fatalf("other worker's job must stay running")
	}
}

func TestReleaseJobOnlyForOwner(t *testing.T) {
	repo, dbc := newRepo(t)
	_, _ = repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), "v1", false)
	job, _ := repo.ClaimNextPending(dbc, "w1")

	ok, err := repo.ReleaseJob(dbc, job.ID, "w2")
	if err != nil || ok {
		t.Fatalf("release by other worker: ok=%v err=%v", ok, err)
	}
	ok, err = repo.ReleaseJob(dbc, job.ID, "w1")
	if err != nil || !ok {
		t.Fatalf("release by owner: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.Status != jobstate.StatusPending || got.TraceID != "" {
		t.Fatalf("released job: %+v", got)
	}
	again, _ := repo.ClaimNextPending(dbc, "w2")
	if again == nil || again.ID != job.ID {
		t.Fatalf("released job must be claimable again")
	}
}

func TestGetByIDMissing(t *testing.T) {
	repo, dbc := newRepo(t)
	got, err := repo.GetByID(dbc, uuid.New())
	if err != nil || got != nil {
		t.Fatalf("GetByID missing: job=%v err=%v", got, err)
	}
}

func TestConcurrentClaimsAreExclusive(t *testing.T) {
	db := testutil.Postgres(t)
	repo := NewContentIngestJobRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	version := "claim-test-" + uuid.NewString()
	t.Cleanup(func() {
		db.Where("pipeline_version = ?", version).Delete(&types.ContentIngestJob{})
	})
	claimConcurrently(t, repo, dbc, version, 8, 4)
}

func TestConcurrentClaimsAreExclusiveSQLite(t *testing.T) {
	repo, dbc := newRepo(t)
	claimConcurrently(t, repo, dbc, "v1", 20, 6)
}

// claimConcurrently creates n jobs, drains them with workers goroutines and fails on any job
// claimed twice or left unclaimed.
func claimConcurrently(t *testing.T, repo ContentIngestJobRepo, dbc dbctx.Context, version string, n, workers int) {
	t.Helper()
	created := map[uuid.UUID]bool{}
	for i := 0; i < n; i++ {
		j, err := repo.CreateOrReuse(dbc, uuid.New(), uuid.New(), version, false)
		if err != nil {
			t.Fatalf("CreateOrReuse: %v", err)
		}
		created[j.ID] = true
	}

	var (
		mu      sync.Mutex
		claimed = map[uuid.UUID]string{}
		wg      sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			for {
				j, err := repo.ClaimNextPending(dbc, worker)
				if err != nil {
					t.Errorf("ClaimNextPending: %v", err)
					return
				}
				if j == nil {
					return
				}
				if !created[j.ID] {
					continue
				}
				mu.Lock()
				if prev, dup := claimed[j.ID]; dup {
					t.Errorf("job %s claimed by %s and %s", j.ID, prev, worker)
				}
				claimed[j.ID] = worker
				mu.Unlock()
			}
		}(fmt.Sprintf("w%d", w))
	}
	wg.Wait()
	if len(claimed) != n {
		t.Fatalf("claimed: want %d got %d", n, len(claimed))
	}
}
