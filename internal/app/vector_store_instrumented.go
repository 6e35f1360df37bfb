package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-content/internal/observability"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

type instrumentedVectorStore struct {
	provider string
	inner    qdrant.VectorStore
}

func instrumentVectorStore(provider string, inner qdrant.VectorStore) qdrant.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{provider: provider, inner: inner}
}

func (s *instrumentedVectorStore) EnsureCollection(ctx context.Context, dim int) (err error) {
	ctx, span := s.start(ctx, "ensure_collection", "", attribute.Int("vector.dim", dim))
	defer func() { observability.EndSpan(span, err) }()
	return s.inner.EnsureCollection(ctx, dim)
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, points []qdrant.Point) (err error) {
	ctx, span := s.start(ctx, "upsert", namespace, attribute.Int("vector.points", len(points)))
	defer func() { observability.EndSpan(span, err) }()
	return s.inner.Upsert(ctx, namespace, points)
}

func (s *instrumentedVectorStore) Search(ctx context.Context, namespace string, vector []float32, topK int, filter qdrant.Filter) (out []qdrant.Match, err error) {
	ctx, span := s.start(ctx, "search", namespace, attribute.Int("vector.top_k", topK))
	defer func() { observability.EndSpan(span, err) }()
	return s.inner.Search(ctx, namespace, vector, topK, filter)
}

func (s *instrumentedVectorStore) DeleteByFilter(ctx context.Context, namespace string, filter qdrant.Filter) (err error) {
	ctx, span := s.start(ctx, "delete_by_filter", namespace)
	defer func() { observability.EndSpan(span, err) }()
	return s.inner.DeleteByFilter(ctx, namespace, filter)
}

func (s *instrumentedVectorStore) start(ctx context.Context, op, namespace string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{
		attribute.String("vector.provider", s.provider),
		attribute.String("vector.operation", op),
		attribute.String("vector.namespace", namespace),
	}, extra...)
	return observability.StartSpan(ctx, "vectorstore."+op, attrs...)
}
