package learning

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"time"
)

const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionShortAnswer    = "short_answer"
)

const (
	OutcomeCorrect   = "correct"
	OutcomePartial   = "partial"
	OutcomeIncorrect = "incorrect"
)

type QuizSet struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"content_id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Difficulty   string          `gorm:"column:difficulty;not null" json:"difficulty"`
	ModelName    string          `gorm:"column:model_name" json:"model_name"`
	UsedFallback bool            `gorm:"column:used_fallback;not null;default:false" json:"used_fallback"`
	Questions    []*QuizQuestion `gorm:"foreignKey:QuizSetID;references:ID" json:"questions,omitempty"`
	CreatedAt    time.Time       `gorm:"not null" json:"created_at"`
}

func (QuizSet) TableName() string { return "quiz_set" }

func (q *QuizSet) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

type QuizQuestion struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	QuizSetID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"quiz_set_id"`
	Position    int            `gorm:"column:position;not null" json:"position"`
	Kind        string         `gorm:"column:kind;not null" json:"kind"`
	Prompt      string         `gorm:"column:prompt;not null" json:"prompt"`
	Options     datatypes.JSON `gorm:"type:jsonb;column:options" json:"options,omitempty"`
	Answer      string         `gorm:"column:answer;not null" json:"-"`
	Explanation string         `gorm:"column:explanation" json:"explanation,omitempty"`
	ConceptKeys datatypes.JSON `gorm:"type:jsonb;column:concept_keys" json:"concept_keys,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
}

func (QuizQuestion) TableName() string { return "quiz_question" }

func (q *QuizQuestion) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// QuizAttempt is unique per (user, quiz set, idempotency key).
type QuizAttempt struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_attempt_idem" json:"user_id"`
	QuizSetID      uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_attempt_idem" json:"quiz_set_id"`
	IdempotencyKey string        `gorm:"column:idempotency_key;not null;uniqueIndex:idx_quiz_attempt_idem" json:"idempotency_key"`
	Score          float64       `gorm:"column:score;not null;default:0" json:"score"`
	CorrectCount   int           `gorm:"column:correct_count;not null;default:0" json:"correct_count"`
	Total          int           `gorm:"column:total;not null;default:0" json:"total"`
	Answers        []*QuizAnswer `gorm:"foreignKey:AttemptID;references:ID" json:"answers,omitempty"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
}

func (QuizAttempt) TableName() string { return "quiz_attempt" }

func (a *QuizAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type QuizAnswer struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AttemptID  uuid.UUID `gorm:"type:uuid;not null;index" json:"attempt_id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Response   string    `gorm:"column:response" json:"response"`
	Outcome    string    `gorm:"column:outcome;not null" json:"outcome"`
	Score      float64   `gorm:"column:score;not null;default:0" json:"score"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (QuizAnswer) TableName() string { return "quiz_answer" }

func (a *QuizAnswer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// OutcomeValue is the mastery target for an answer outcome.
func OutcomeValue(outcome string) float64 {
	switch outcome {
	case OutcomeCorrect:
		return 1
	case OutcomePartial:
		return 0.5
	default:
		return 0
	}
}
