package learning

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

func (r *learningRepo) CreateQuizSet(dbc dbctx.Context, set *types.QuizSet) (*types.QuizSet, error) {
	if set == nil || set.ContentID == uuid.Nil {
		return nil, errors.New("quiz set requires content id")
	}
	for i, q := range set.Questions {
		q.Position = i
	}
	if err := r.tx(dbc).Create(set).Error; err != nil {
		return nil, err
	}
	return set, nil
}

// GetQuizSet loads the set with questions ordered by position. Returns nil when missing.
func (r *learningRepo) GetQuizSet(dbc dbctx.Context, id uuid.UUID) (*types.QuizSet, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var set types.QuizSet
	err := r.tx(dbc).
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		Take(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// SubmitAttempt stores attempt with its answers and applies the mastery outcomes in one
// transaction. A repeated (user, quiz set, idempotency key) returns the stored attempt with
// created=false and leaves mastery untouched.
func (r *learningRepo) SubmitAttempt(dbc dbctx.Context, contentID uuid.UUID, attempt *types.QuizAttempt, outcomes []ConceptOutcome, rate float64) (*types.QuizAttempt, bool, error) {
	if attempt == nil || attempt.UserID == uuid.Nil || attempt.QuizSetID == uuid.Nil {
		return nil, false, errors.New("attempt requires user and quiz set")
	}
	attempt.IdempotencyKey = strings.TrimSpace(attempt.IdempotencyKey)
	if attempt.IdempotencyKey == "" {
		return nil, false, errors.New("idempotency key required")
	}

	if existing, err := r.attemptByKey(dbc, attempt.UserID, attempt.QuizSetID, attempt.IdempotencyKey); err != nil || existing != nil {
		return existing, false, err
	}

	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(attempt).Error; err != nil {
			return err
		}
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: txx}
		for _, o := range outcomes {
			if strings.TrimSpace(o.ConceptKey) == "" {
				continue
			}
			if _, err := r.UpdateMastery(inner, attempt.UserID, contentID, o.ConceptKey, o.Outcome, rate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, false, err
		}
		existing, rErr := r.attemptByKey(dbc, attempt.UserID, attempt.QuizSetID, attempt.IdempotencyKey)
		if rErr != nil {
			return nil, false, rErr
		}
		if existing == nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return attempt, true, nil
}

func (r *learningRepo) attemptByKey(dbc dbctx.Context, userID, quizSetID uuid.UUID, key string) (*types.QuizAttempt, error) {
	var row types.QuizAttempt
	err := r.tx(dbc).
		Preload("Answers").
		Where("user_id = ? AND quiz_set_id = ? AND idempotency_key = ?", userID, quizSetID, key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *learningRepo) GetAttempt(dbc dbctx.Context, id uuid.UUID) (*types.QuizAttempt, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.QuizAttempt
	err := r.tx(dbc).Preload("Answers").Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetAttemptReport returns nil when the attempt does not exist.
func (r *learningRepo) GetAttemptReport(dbc dbctx.Context, id uuid.UUID) (*AttemptReport, error) {
	attempt, err := r.GetAttempt(dbc, id)
	if err != nil || attempt == nil {
		return nil, err
	}
	set, err := r.GetQuizSet(dbc, attempt.QuizSetID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, nil
	}
	questions := make(map[uuid.UUID]*types.QuizQuestion, len(set.Questions))
	for _, q := range set.Questions {
		questions[q.ID] = q
	}
	return &AttemptReport{Attempt: attempt, QuizSet: set, Questions: questions}, nil
}
