package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/learning"
)

// SeedContent inserts a catalog row and links it to userID.
func SeedContent(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, provider, contentType, url string) *types.Content {
	tb.Helper()
	c := &types.Content{
		ID:           uuid.New(),
		Provider:     provider,
		ContentType:  contentType,
		CanonicalURL: url,
		Title:        "seeded",
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed content: %v", err)
	}
	if userID != uuid.Nil {
		if err := tx.WithContext(ctx).Create(&types.UserContent{UserID: userID, ContentID: c.ID}).Error; err != nil {
			tb.Fatalf("seed user content: %v", err)
		}
	}
	return c
}

// SeedQuizSet inserts a quiz set with one multiple-choice and one short-answer question.
func SeedQuizSet(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, contentID uuid.UUID) *types.QuizSet {
	tb.Helper()
	set := &types.QuizSet{
		ContentID:  contentID,
		UserID:     userID,
		Difficulty: "medium",
		ModelName:  "test",
		Questions: []*types.QuizQuestion{
			{
				Position:    0,
				Kind:        learning.QuestionMultipleChoice,
				Prompt:      "Which planet is red?",
				Options:     []byte(`["Mars","Venus"]`),
				Answer:      "Mars",
				ConceptKeys: []byte(`["mars"]`),
			},
			{
				Position:    1,
				Kind:        learning.QuestionShortAnswer,
				Prompt:      "What gives Mars its color?",
				Answer:      "iron oxide dust",
				ConceptKeys: []byte(`["mars","iron_oxide"]`),
			},
		},
	}
	if err := tx.WithContext(ctx).Create(set).Error; err != nil {
		tb.Fatalf("seed quiz set: %v", err)
	}
	return set
}

func PtrInt64(v int64) *int64 { return &v }
