package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

func testChunks(contentID uuid.UUID, n int) []segmenter.Chunk {
	out := make([]segmenter.Chunk, n)
	start := int64(1000)
	for i := range out {
		out[i] = segmenter.Chunk{
			ID:          uuid.New(),
			ContentID:   contentID,
			SegmentID:   uuid.New(),
			Position:    i,
			Text:        "chunk text about mars",
			SectionPath: "Mars",
			StartMs:     &start,
		}
	}
	return out
}

func TestIndexChunksReplacesPointsForContent(t *testing.T) {
	store := newFakeStore()
	idx := NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 8}, VectorIndexConfig{FallbackDim: 8})
	contentID, userID := uuid.New(), uuid.New()

	res, err := idx.IndexChunks(context.Background(), contentID, userID, testChunks(contentID, 5))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Indexed)
	assert.Equal(t, 8, res.Dim)
	assert.False(t, res.UsedFallback)

	res, err = idx.IndexChunks(context.Background(), contentID, userID, testChunks(contentID, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Indexed)
	assert.Len(t, store.points, 3)
	assert.Equal(t, 2, store.deletes)
	for _, p := range store.points {
		assert.Equal(t, contentID.String(), p.Payload["content_id"])
		assert.Equal(t, userID.String(), p.Payload["user_id"])
		assert.Equal(t, "Mars", p.Payload["section_path"])
		assert.NotEmpty(t, p.Payload["segment_id"])
	}
}

func TestIndexChunksUsesPseudoEmbeddingsWhenProviderFails(t *testing.T) {
	store := newFakeStore()
	idx := NewVectorIndex(logger.Nop(), store, fakeEmbedder{err: errors.New("quota")}, VectorIndexConfig{FallbackDim: 64})
	contentID := uuid.New()

	res, err := idx.IndexChunks(context.Background(), contentID, uuid.Nil, testChunks(contentID, 2))
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, 64, res.Dim)
	for _, p := range store.points {
		assert.Len(t, p.Values, 64)
		_, hasUser := p.Payload["user_id"]
		assert.False(t, hasUser)
	}
}

func TestIndexChunksWithoutStoreIsSkipped(t *testing.T) {
	idx := NewVectorIndex(logger.Nop(), nil, nil, VectorIndexConfig{})
	res, err := idx.IndexChunks(context.Background(), uuid.New(), uuid.New(), testChunks(uuid.New(), 2))
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)

	hits, err := idx.SearchChunks(context.Background(), ChunkQuery{ContentID: uuid.New(), Query: "mars"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchChunksMapsPayloadAndScopes(t *testing.T) {
	store := newFakeStore()
	store.matches = []qdrant.Match{{
		ID:    "p1",
		Score: 0.82,
		Payload: map[string]any{
			"chunk_id":         "c1",
			"segment_id":       "s1",
			"segment_position": float64(4),
			"text":             "Mars has two moons.",
			"section_path":     "Mars > Moons",
			"start_ms":         float64(1500),
		},
	}}
	idx := NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 4}, VectorIndexConfig{FallbackDim: 4})
	contentID, userID := uuid.New(), uuid.New()

	hits, err := idx.SearchChunks(context.Background(), ChunkQuery{ContentID: contentID, UserID: userID, Query: "moons", TopK: 3})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.Equal(t, 4, hits[0].SegmentPosition)
	require.NotNil(t, hits[0].StartMs)
	assert.EqualValues(t, 1500, *hits[0].StartMs)
	assert.Nil(t, hits[0].EndMs)
	assert.Equal(t, contentID.String(), store.lastQuery["content_id"])
	assert.Equal(t, userID.String(), store.lastQuery["user_id"])
}

func TestSearchChunksPropagatesUnavailableStore(t *testing.T) {
	store := newFakeStore()
	store.searchErr = apierr.VectorStoreUnavailable(errors.New("connection refused"))
	idx := NewVectorIndex(logger.Nop(), store, fakeEmbedder{dim: 4}, VectorIndexConfig{FallbackDim: 4})

	_, err := idx.SearchChunks(context.Background(), ChunkQuery{ContentID: uuid.New(), Query: "moons"})
	require.ErrorIs(t, err, apierr.ErrVectorStoreUnavailable)
}

func TestPseudoEmbeddingIsDeterministicAndNormalized(t *testing.T) {
	a := PseudoEmbedding("Mars has two moons", 128)
	b := PseudoEmbedding("Mars has two moons", 128)
	assert.Equal(t, a, b)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty := PseudoEmbedding("", 16)
	assert.Len(t, empty, 16)
	assert.Equal(t, float32(1), empty[0])

	cos := func(x, y []float32) float64 {
		var s float64
		for i := range x {
			s += float64(x[i]) * float64(y[i])
		}
		return s
	}
	near := PseudoEmbedding("Mars has two small moons", 128)
	far := PseudoEmbedding("Quarterly revenue grew nine percent", 128)
	assert.Greater(t, cos(a, near), cos(a, far))
}
