package learning

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"time"
)

type UserConceptMastery struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_concept_mastery" json:"user_id"`
	ContentID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_user_concept_mastery" json:"content_id"`
	ConceptKey string    `gorm:"column:concept_key;not null;uniqueIndex:idx_user_concept_mastery" json:"concept_key"`
	Score      float64   `gorm:"column:score;not null;default:0" json:"score"`
	Attempts   int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (UserConceptMastery) TableName() string { return "user_concept_mastery" }

func (m *UserConceptMastery) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// NextMastery moves prev toward the outcome value by rate and clamps to [0, 1].
func NextMastery(prev, outcome, rate float64) float64 {
	if rate <= 0 || rate > 1 {
		rate = 0.3
	}
	next := prev + rate*(outcome-prev)
	if next < 0 {
		return 0
	}
	if next > 1 {
		return 1
	}
	return next
}
