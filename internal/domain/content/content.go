package content

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"time"
)

// Content is a catalog row owned by the content catalog. The pipeline only reads it.
type Content struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Provider     string    `gorm:"column:provider;index" json:"provider"`
	ContentType  string    `gorm:"column:content_type;index" json:"content_type"`
	CanonicalURL string    `gorm:"column:canonical_url" json:"canonical_url"`
	OriginalURL  string    `gorm:"column:original_url" json:"original_url"`
	Title        string    `gorm:"column:title" json:"title"`
	DurationSec  *int      `gorm:"column:duration_sec" json:"duration_sec,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (Content) TableName() string { return "content_item" }

func (c *Content) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// SourceURL prefers the canonical URL.
func (c *Content) SourceURL() string {
	if c == nil {
		return ""
	}
	if c.CanonicalURL != "" {
		return c.CanonicalURL
	}
	return c.OriginalURL
}

// UserContent records that a user saved a content item.
type UserContent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_content" json:"user_id"`
	ContentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_content" json:"content_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (UserContent) TableName() string { return "user_content" }

func (u *UserContent) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Segment is a position-tagged unit of normalized text.
type Segment struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_segment_content_pos" json:"content_id"`
	Position      int            `gorm:"column:position;not null;index:idx_segment_content_pos" json:"position"`
	Text          string         `gorm:"column:text;not null" json:"text"`
	StartMs       *int64         `gorm:"column:start_ms" json:"start_ms,omitempty"`
	EndMs         *int64         `gorm:"column:end_ms" json:"end_ms,omitempty"`
	SectionPath   string         `gorm:"column:section_path" json:"section_path,omitempty"`
	TokenEstimate int            `gorm:"column:token_estimate;not null;default:0" json:"token_estimate"`
	Metadata      datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (Segment) TableName() string { return "content_segment" }

func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

const (
	AssetRawHTML    = "raw_html"
	AssetCleanText  = "clean_text"
	AssetMarkdown   = "markdown"
	AssetTranscript = "transcript"
	AssetMetadata   = "metadata"
	AssetFeed       = "feed"
)

// Asset is a raw artifact captured during ingestion.
type Asset struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"content_id"`
	Kind      string         `gorm:"column:kind;not null;index" json:"kind"`
	URI       string         `gorm:"column:uri" json:"uri,omitempty"`
	Body      string         `gorm:"column:body" json:"body,omitempty"`
	Metadata  datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (Asset) TableName() string { return "content_asset" }

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

const (
	ArtifactSummaryGlobal  = "summary_global"
	ArtifactSummarySection = "summary_section"
	ArtifactQASeed         = "qa_seed"
	ArtifactQuizSeed       = "quiz_seed"
)

// Artifact is an append-only analysis output. Readers take the latest row per type.
type Artifact struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_artifact_content_type" json:"content_id"`
	ArtifactType string         `gorm:"column:artifact_type;not null;index:idx_artifact_content_type" json:"artifact_type"`
	Payload      datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload"`
	ModelName    string         `gorm:"column:model_name" json:"model_name"`
	UsedFallback bool           `gorm:"column:used_fallback;not null;default:false" json:"used_fallback"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
}

func (Artifact) TableName() string { return "content_artifact" }

func (a *Artifact) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
