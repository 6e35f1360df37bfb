package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

func TestAnswerFallsBackToLexicalRetrieval(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	idx := NewVectorIndex(logger.Nop(), newFakeStore(), fakeEmbedder{dim: 4}, VectorIndexConfig{FallbackDim: 4})
	qa := NewQAService(logger.Nop(), idx, f.repo, NewLLMGateway(logger.Nop(), nil, nil), QAConfig{TopK: 3})

	res, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, Question: "What are the moons of Mars called?"})
	require.NoError(t, err)
	assert.Equal(t, RetrievalLexical, res.RetrievalMode)
	assert.NotEmpty(t, res.Answer)
	assert.True(t, res.UsedFallback)
	assert.GreaterOrEqual(t, res.Confidence, 0.2)
	assert.LessOrEqual(t, res.Confidence, 0.5)
	require.NotEmpty(t, res.Citations)
	assert.Contains(t, res.Citations[0].Text, "Phobos")
	assert.Contains(t, res.Answer, "[1]")
}

func TestAnswerUsesGatewayWithNumberedContext(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	store := newFakeStore()
	store.matches = []qdrant.Match{
		{ID: "a", Score: 0.99, Payload: map[string]any{"text": "Phobos and Deimos orbit Mars.", "section_path": "Moons", "segment_id": "s"}},
		{ID: "b", Score: 0.4, Payload: map[string]any{"text": "Mars is red.", "segment_id": "t"}},
	}
	gw := &fakeGateway{text: "Phobos and Deimos [1]."}
	qa := NewQAService(logger.Nop(), NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 4}, VectorIndexConfig{}), f.repo, gw, QAConfig{})

	res, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, Question: "Name the moons"})
	require.NoError(t, err)
	assert.Equal(t, RetrievalVector, res.RetrievalMode)
	assert.Equal(t, "Phobos and Deimos [1].", res.Answer)
	assert.Equal(t, "fake-model", res.ModelName)
	assert.Equal(t, 0.95, res.Confidence)
	require.Len(t, gw.prompts, 1)
	assert.Contains(t, gw.prompts[0], "[1] (Moons) Phobos and Deimos orbit Mars.")
	assert.Contains(t, gw.prompts[0], "[2] Mars is red.")
}

func TestAnswerHeuristicWhenGatewayFails(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	gw := &fakeGateway{err: ErrNoLLMOutput}
	idx := NewVectorIndex(logger.Nop(), newFakeStore(), fakeEmbedder{dim: 4}, VectorIndexConfig{})
	qa := NewQAService(logger.Nop(), idx, f.repo, gw, QAConfig{})

	res, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, Question: "atmosphere carbon dioxide"})
	require.NoError(t, err)
	assert.Equal(t, heuristicModel, res.ModelName)
	assert.Contains(t, res.Answer, "carbon dioxide")
}

func TestAnswerPropagatesVectorStoreUnavailable(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	store := newFakeStore()
	store.searchErr = apierr.VectorStoreUnavailable(errors.New("503"))
	qa := NewQAService(logger.Nop(), NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 4}, VectorIndexConfig{}), f.repo, &fakeGateway{text: "x"}, QAConfig{})

	_, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, Question: "moons"})
	require.ErrorIs(t, err, apierr.ErrVectorStoreUnavailable)
}

func TestAnswerSearchesByContentOnly(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	store := newFakeStore()
	store.matches = []qdrant.Match{{ID: "a", Score: 0.8, Payload: map[string]any{"text": "Phobos orbits Mars.", "segment_id": "s"}}}
	qa := NewQAService(logger.Nop(), NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 4}, VectorIndexConfig{}), f.repo, &fakeGateway{text: "Phobos [1]."}, QAConfig{})

	_, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, UserID: uuid.New(), Question: "moons"})
	require.NoError(t, err)
	assert.Equal(t, f.item.ID.String(), store.lastQuery["content_id"])
	assert.NotContains(t, store.lastQuery, "user_id")
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	f := newLearningFixture(t)
	qa := NewQAService(logger.Nop(), NewVectorIndex(logger.Nop(), nil, nil, VectorIndexConfig{}), f.repo, &fakeGateway{}, QAConfig{})
	_, err := qa.Answer(context.Background(), AskInput{ContentID: f.item.ID, Question: "  "})
	require.ErrorIs(t, err, apierr.ErrInvalidArgument)
}
