package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type ContentIngestJobRepo interface {
	CreateOrReuse(dbc dbctx.Context, userID, contentID uuid.UUID, pipelineVersion string, forceRebuild bool) (*types.ContentIngestJob, error)
	ClaimNextPending(dbc dbctx.Context, workerID string) (*types.ContentIngestJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentIngestJob, error)
	SetStage(dbc dbctx.Context, id uuid.UUID, stage string) error
	SetAttemptCount(dbc dbctx.Context, id uuid.UUID, attempts int) error
	MarkError(dbc dbctx.Context, id uuid.UUID, code, detail string) error
	MarkCompleted(dbc dbctx.Context, id uuid.UUID) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, code, detail string) error
	MarkFallbackUsed(dbc dbctx.Context, id uuid.UUID) error
	ReleaseWorkerJobs(dbc dbctx.Context, workerID string) (int64, error)
	ReleaseJob(dbc dbctx.Context, id uuid.UUID, workerID string) (bool, error)
}

type contentIngestJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentIngestJobRepo(db *gorm.DB, baseLog *logger.Logger) ContentIngestJobRepo {
	return &contentIngestJobRepo{
		db:  db,
		log: baseLog.With("repo", "ContentIngestJobRepo"),
	}
}

func (r *contentIngestJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

// CreateOrReuse returns the job for (contentID, pipelineVersion). Pending and running jobs are
// returned untouched unless forceRebuild is set; failed jobs are always reset to pending.
// Concurrent first submissions converge on one row through the unique index.
func (r *contentIngestJobRepo) CreateOrReuse(dbc dbctx.Context, userID, contentID uuid.UUID, pipelineVersion string, forceRebuild bool) (*types.ContentIngestJob, error) {
	if contentID == uuid.Nil || pipelineVersion == "" {
		return nil, errors.New("content id and pipeline version required")
	}
	var out *types.ContentIngestJob
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		fresh := &types.ContentIngestJob{
			UserID:          userID,
			ContentID:       contentID,
			PipelineVersion: pipelineVersion,
			Status:          jobstate.StatusPending,
			Stage:           jobstate.StageQueued,
		}
		res := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(fresh)
		if res.Error != nil {
			if !isUniqueViolation(res.Error) {
				return res.Error
			}
		} else if res.RowsAffected == 1 {
			out = fresh
			return nil
		}

		var existing types.ContentIngestJob
		if err := txx.Where("content_id = ? AND pipeline_version = ?", contentID, pipelineVersion).
			Take(&existing).Error; err != nil {
			return err
		}
		if !needsReset(existing.Status, forceRebuild) {
			out = &existing
			return nil
		}

		if err := txx.Model(&types.ContentIngestJob{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"user_id":       userID,
				"status":        jobstate.StatusPending,
				"stage":         jobstate.StageQueued,
				"attempt_count": 0,
				"error_code":    "",
				"error_detail":  "",
				"fallback_used": false,
				"trace_id":      "",
				"started_at":    nil,
				"finished_at":   nil,
				"updated_at":    time.Now(),
			}).Error; err != nil {
			return err
		}
		var reset types.ContentIngestJob
		if err := txx.Where("id = ?", existing.ID).Take(&reset).Error; err != nil {
			return err
		}
		out = &reset
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func needsReset(status string, forceRebuild bool) bool {
	if status == jobstate.StatusFailed {
		return true
	}
	return forceRebuild
}

// ClaimNextPending flips the oldest pending job to running for workerID. Rows locked by other
// workers are skipped. Returns nil when nothing is pending.
func (r *contentIngestJobRepo) ClaimNextPending(dbc dbctx.Context, workerID string) (*types.ContentIngestJob, error) {
	now := time.Now()
	var claimed *types.ContentIngestJob
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		var job types.ContentIngestJob
		qErr := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", jobstate.StatusPending).
			Order("created_at ASC").
			First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		res := txx.Model(&types.ContentIngestJob{}).
			Where("id = ? AND status = ?", job.ID, jobstate.StatusPending).
			Updates(map[string]interface{}{
				"status":     jobstate.StatusRunning,
				"trace_id":   workerID,
				"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := txx.Where("id = ?", job.ID).Take(&job).Error; err != nil {
			return err
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *contentIngestJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentIngestJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ContentIngestJob
	err := r.tx(dbc).Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *contentIngestJobRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.tx(dbc).
		Model(&types.ContentIngestJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *contentIngestJobRepo) SetStage(dbc dbctx.Context, id uuid.UUID, stage string) error {
	return r.update(dbc, id, map[string]interface{}{"stage": stage})
}

func (r *contentIngestJobRepo) SetAttemptCount(dbc dbctx.Context, id uuid.UUID, attempts int) error {
	return r.update(dbc, id, map[string]interface{}{"attempt_count": attempts})
}

// MarkError records a non-terminal failure; the job stays running.
func (r *contentIngestJobRepo) MarkError(dbc dbctx.Context, id uuid.UUID, code, detail string) error {
	return r.update(dbc, id, map[string]interface{}{
		"error_code":   code,
		"error_detail": detail,
	})
}

// MarkCompleted keeps the fallback annotation and clears leftover retry errors.
func (r *contentIngestJobRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":       jobstate.StatusCompleted,
		"stage":        jobstate.StageDone,
		"finished_at":  time.Now(),
		"error_code":   gorm.Expr("CASE WHEN fallback_used THEN ? ELSE '' END", jobstate.ErrorCodeFallbackUsed),
		"error_detail": "",
	})
}

func (r *contentIngestJobRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, code, detail string) error {
	return r.update(dbc, id, map[string]interface{}{
		"status":       jobstate.StatusFailed,
		"error_code":   code,
		"error_detail": detail,
		"finished_at":  time.Now(),
	})
}

func (r *contentIngestJobRepo) MarkFallbackUsed(dbc dbctx.Context, id uuid.UUID) error {
	return r.update(dbc, id, map[string]interface{}{
		"fallback_used": true,
		"error_code":    gorm.Expr("CASE WHEN error_code IS NULL OR error_code = '' THEN ? ELSE error_code END", jobstate.ErrorCodeFallbackUsed),
	})
}

// ReleaseWorkerJobs hands running jobs owned by workerID back to the queue.
func (r *contentIngestJobRepo) ReleaseWorkerJobs(dbc dbctx.Context, workerID string) (int64, error) {
	if workerID == "" {
		return 0, nil
	}
	res := r.tx(dbc).
		Model(&types.ContentIngestJob{}).
		Where("status = ? AND trace_id = ?", jobstate.StatusRunning, workerID).
		Updates(map[string]interface{}{
			"status":     jobstate.StatusPending,
			"trace_id":   "",
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Info("released worker jobs", "worker_id", workerID, "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// ReleaseJob hands one running job back to the queue if workerID still owns it.
func (r *contentIngestJobRepo) ReleaseJob(dbc dbctx.Context, id uuid.UUID, workerID string) (bool, error) {
	if id == uuid.Nil || workerID == "" {
		return false, nil
	}
	res := r.tx(dbc).
		Model(&types.ContentIngestJob{}).
		Where("id = ? AND status = ? AND trace_id = ?", id, jobstate.StatusRunning, workerID).
		Updates(map[string]interface{}{
			"status":     jobstate.StatusPending,
			"trace_id":   "",
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
