package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

// Concept is a knowledge-graph node extracted from one content item. The set for a content
// is replaced wholesale on every ingestion run.
type Concept struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_concept_content_key" json:"content_id"`
	Key        string    `gorm:"column:key;not null;uniqueIndex:idx_concept_content_key" json:"key"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	Summary    string    `gorm:"column:summary" json:"summary,omitempty"`
	Importance float64   `gorm:"column:importance;not null;default:0" json:"importance"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (Concept) TableName() string { return "content_concept" }

func (c *Concept) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type ConceptEdge struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID     uuid.UUID `gorm:"type:uuid;not null;index" json:"content_id"`
	FromConceptID uuid.UUID `gorm:"type:uuid;not null;index" json:"from_concept_id"`
	ToConceptID   uuid.UUID `gorm:"type:uuid;not null;index" json:"to_concept_id"`
	Relation      string    `gorm:"column:relation;not null" json:"relation"`
	Weight        float64   `gorm:"column:weight;not null;default:0" json:"weight"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (ConceptEdge) TableName() string { return "content_concept_edge" }

func (e *ConceptEdge) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
