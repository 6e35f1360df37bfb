package learning

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	learndom "github.com/yungbote/neurobridge-content/internal/domain/learning"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
)

// UpdateMastery folds one outcome into the stored score for (user, content, concept).
// The row is locked while it is read so concurrent submissions serialize.
func (r *learningRepo) UpdateMastery(dbc dbctx.Context, userID, contentID uuid.UUID, conceptKey string, outcome, rate float64) (*types.UserConceptMastery, error) {
	if userID == uuid.Nil || contentID == uuid.Nil || conceptKey == "" {
		return nil, errors.New("mastery requires user, content and concept key")
	}
	var out types.UserConceptMastery
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		seed := &types.UserConceptMastery{
			UserID:     userID,
			ContentID:  contentID,
			ConceptKey: conceptKey,
		}
		if err := txx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return err
		}

		if err := txx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND content_id = ? AND concept_key = ?", userID, contentID, conceptKey).
			Take(&out).Error; err != nil {
			return err
		}

		out.Score = learndom.NextMastery(out.Score, outcome, rate)
		out.Attempts++
		return txx.Model(&types.UserConceptMastery{}).
			Where("id = ?", out.ID).
			Updates(map[string]interface{}{
				"score":      out.Score,
				"attempts":   out.Attempts,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *learningRepo) ListMastery(dbc dbctx.Context, userID, contentID uuid.UUID) ([]*types.UserConceptMastery, error) {
	var out []*types.UserConceptMastery
	if err := r.tx(dbc).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Order("concept_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
