package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const (
	StageQueued         = "queued"
	StageResolve        = "resolve"
	StageFetch          = "fetch"
	StageTranscribe     = "transcribe"
	StageSegment        = "segment"
	StageEmbed          = "embed"
	StageSummarize      = "summarize"
	StageConceptExtract = "concept_extract"
	StageQuizGenerate   = "quiz_generate"
	StageDone           = "done"
)

const (
	ErrorCodePipelineError  = "pipeline_error"
	ErrorCodePipelineFailed = "pipeline_failed"
	// Annotation only: the job finished but a degraded provider produced part of it.
	ErrorCodeFallbackUsed = "gemini_fallback_used"
)

var stageProgress = map[string]int{
	StageQueued:         0,
	StageResolve:        5,
	StageFetch:          15,
	StageTranscribe:     30,
	StageSegment:        45,
	StageEmbed:          60,
	StageSummarize:      75,
	StageConceptExtract: 85,
	StageQuizGenerate:   95,
	StageDone:           100,
}

// StageProgress maps a stage label to its percentage. Unknown stages report 0.
func StageProgress(stage string) int {
	return stageProgress[stage]
}

// ContentIngestJob tracks one (content, pipeline version) pair through the pipeline.
type ContentIngestJob struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	ContentID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_ingest_job_content_version" json:"content_id"`
	PipelineVersion string     `gorm:"column:pipeline_version;not null;uniqueIndex:idx_ingest_job_content_version" json:"pipeline_version"`
	Status          string     `gorm:"column:status;not null;index:idx_ingest_job_status_created" json:"status"`
	Stage           string     `gorm:"column:stage;not null" json:"stage"`
	AttemptCount    int        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	ErrorCode       string     `gorm:"column:error_code" json:"error_code,omitempty"`
	ErrorDetail     string     `gorm:"column:error_detail" json:"error_detail,omitempty"`
	FallbackUsed    bool       `gorm:"column:fallback_used;not null;default:false" json:"fallback_used"`
	TraceID         string     `gorm:"column:trace_id;index" json:"trace_id,omitempty"`
	StartedAt       *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null;index:idx_ingest_job_status_created" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

func (ContentIngestJob) TableName() string { return "content_ingest_job" }

func (j *ContentIngestJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

func (j *ContentIngestJob) ProgressPct() int {
	if j == nil {
		return 0
	}
	return StageProgress(j.Stage)
}
