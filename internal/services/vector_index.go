package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/ingestion/segmenter"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

const (
	chunkNamespace  = "content_chunks"
	embedBatchSize  = 64
	defaultEmbedDim = 1536
)

// Embedder turns texts into vectors. openai.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type IndexResult struct {
	Indexed      int
	Dim          int
	UsedFallback bool
}

// ChunkQuery scopes a search to one content item and, when UserID is set, to the points that
// user's runs indexed.
type ChunkQuery struct {
	ContentID uuid.UUID
	UserID    uuid.UUID
	Query     string
	TopK      int
}

// ChunkHit is one retrieved chunk with enough provenance to cite its segment.
type ChunkHit struct {
	ChunkID         string
	SegmentID       string
	SegmentPosition int
	Position        int
	Text            string
	SectionPath     string
	StartMs         *int64
	EndMs           *int64
	Score           float64
}

type VectorIndex interface {
	IndexChunks(ctx context.Context, contentID, userID uuid.UUID, chunks []segmenter.Chunk) (IndexResult, error)
	SearchChunks(ctx context.Context, q ChunkQuery) ([]ChunkHit, error)
}

type VectorIndexConfig struct {
	// FallbackDim sizes pseudo-embeddings; it must match the collection dimension.
	FallbackDim int
}

func VectorIndexConfigFromEnv() VectorIndexConfig {
	return VectorIndexConfig{FallbackDim: envutil.Int("EMBED_FALLBACK_DIM", defaultEmbedDim)}
}

type vectorIndex struct {
	log      *logger.Logger
	store    qdrant.VectorStore
	embedder Embedder
	cfg      VectorIndexConfig
}

// NewVectorIndex accepts a nil store (indexing is skipped and searches return nothing) and a
// nil embedder (pseudo-embeddings only).
func NewVectorIndex(log *logger.Logger, store qdrant.VectorStore, embedder Embedder, cfg VectorIndexConfig) VectorIndex {
	if cfg.FallbackDim <= 0 {
		cfg.FallbackDim = defaultEmbedDim
	}
	return &vectorIndex{log: log.With("service", "VectorIndex"), store: store, embedder: embedder, cfg: cfg}
}

// IndexChunks replaces every point of contentID with chunks.
func (v *vectorIndex) IndexChunks(ctx context.Context, contentID, userID uuid.UUID, chunks []segmenter.Chunk) (IndexResult, error) {
	if contentID == uuid.Nil {
		return IndexResult{}, apierr.InvalidArgument("content id required")
	}
	if v.store == nil {
		v.log.Warn("vector store not configured; skipping index", "content_id", contentID)
		return IndexResult{}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, usedFallback := v.embed(ctx, texts)
	if err := ctx.Err(); err != nil {
		return IndexResult{}, err
	}

	res := IndexResult{UsedFallback: usedFallback}
	filter := qdrant.Filter{"content_id": contentID.String()}
	if len(vectors) > 0 {
		res.Dim = len(vectors[0])
		if err := v.store.EnsureCollection(ctx, res.Dim); err != nil {
			return res, fmt.Errorf("ensure collection: %w", err)
		}
	}
	if err := v.store.DeleteByFilter(ctx, chunkNamespace, filter); err != nil {
		return res, fmt.Errorf("delete stale chunks: %w", err)
	}
	if len(chunks) == 0 {
		return res, nil
	}

	points := make([]qdrant.Point, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, qdrant.Point{
			ID:      c.ID.String(),
			Values:  vectors[i],
			Payload: chunkPayload(c, userID),
		})
	}
	for start := 0; start < len(points); start += embedBatchSize {
		end := min(start+embedBatchSize, len(points))
		if err := v.store.Upsert(ctx, chunkNamespace, points[start:end]); err != nil {
			return res, fmt.Errorf("upsert chunks: %w", err)
		}
	}
	res.Indexed = len(points)
	v.log.Info("chunks indexed", "content_id", contentID, "chunks", res.Indexed, "dim", res.Dim, "used_fallback", usedFallback)
	return res, nil
}

func (v *vectorIndex) SearchChunks(ctx context.Context, q ChunkQuery) ([]ChunkHit, error) {
	if q.ContentID == uuid.Nil || strings.TrimSpace(q.Query) == "" {
		return nil, apierr.InvalidArgument("content id and query required")
	}
	if v.store == nil {
		return nil, nil
	}
	vectors, _ := v.embed(ctx, []string{q.Query})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := qdrant.Filter{"content_id": q.ContentID.String()}
	if q.UserID != uuid.Nil {
		filter["user_id"] = q.UserID.String()
	}
	matches, err := v.store.Search(ctx, chunkNamespace, vectors[0], q.TopK, filter)
	if err != nil {
		return nil, err
	}
	out := make([]ChunkHit, 0, len(matches))
	for _, m := range matches {
		out = append(out, hitFromPayload(m))
	}
	return out, nil
}

// embed returns one vector per text. Any provider failure switches the whole batch to
// pseudo-embeddings so vectors in one call share a dimension.
func (v *vectorIndex) embed(ctx context.Context, texts []string) ([][]float32, bool) {
	if len(texts) == 0 {
		return nil, false
	}
	if v.embedder != nil {
		out := make([][]float32, 0, len(texts))
		var err error
		for start := 0; start < len(texts) && err == nil; start += embedBatchSize {
			end := min(start+embedBatchSize, len(texts))
			var batch [][]float32
			batch, err = v.embedder.Embed(ctx, texts[start:end])
			if err == nil && len(batch) != end-start {
				err = fmt.Errorf("embedder returned %d vectors for %d inputs", len(batch), end-start)
			}
			out = append(out, batch...)
		}
		if err == nil {
			return out, false
		}
		if ctx.Err() != nil {
			return nil, true
		}
		v.log.Warn("embedding provider failed; using pseudo-embeddings", "inputs", len(texts), "error", err)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = PseudoEmbedding(t, v.cfg.FallbackDim)
	}
	return out, true
}

// PseudoEmbedding is a deterministic, L2-normalized histogram of the text's bytes and word
// hashes. Similar texts land near each other; nothing more is promised.
func PseudoEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultEmbedDim
	}
	vec := make([]float64, dim)
	lower := strings.ToLower(text)
	for i := 0; i < len(lower); i++ {
		vec[int(lower[i])%dim] += 0.25
	}
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32()%uint32(dim))] += 1
	}
	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	out := make([]float32, dim)
	if norm == 0 {
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range vec {
		out[i] = float32(x / norm)
	}
	return out
}

func chunkPayload(c segmenter.Chunk, userID uuid.UUID) map[string]any {
	p := map[string]any{
		"content_id":       c.ContentID.String(),
		"chunk_id":         c.ID.String(),
		"segment_id":       c.SegmentID.String(),
		"position":         c.Position,
		"segment_position": c.SegmentPosition,
		"start_offset":     c.StartOffset,
		"end_offset":       c.EndOffset,
		"text":             c.Text,
		"section_path":     c.SectionPath,
	}
	if userID != uuid.Nil {
		p["user_id"] = userID.String()
	}
	if c.StartMs != nil {
		p["start_ms"] = *c.StartMs
	}
	if c.EndMs != nil {
		p["end_ms"] = *c.EndMs
	}
	return p
}

func hitFromPayload(m qdrant.Match) ChunkHit {
	h := ChunkHit{
		ChunkID:         payloadString(m.Payload, "chunk_id"),
		SegmentID:       payloadString(m.Payload, "segment_id"),
		SegmentPosition: int(payloadInt(m.Payload, "segment_position")),
		Position:        int(payloadInt(m.Payload, "position")),
		Text:            payloadString(m.Payload, "text"),
		SectionPath:     payloadString(m.Payload, "section_path"),
		Score:           m.Score,
	}
	if h.ChunkID == "" {
		h.ChunkID = m.ID
	}
	if _, ok := m.Payload["start_ms"]; ok {
		v := payloadInt(m.Payload, "start_ms")
		h.StartMs = &v
	}
	if _, ok := m.Payload["end_ms"]; ok {
		v := payloadInt(m.Payload, "end_ms")
		h.EndMs = &v
	}
	return h
}

func payloadString(p map[string]any, key string) string {
	if s, ok := p[key].(string); ok {
		return s
	}
	return ""
}

func payloadInt(p map[string]any, key string) int64 {
	switch v := p[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}
