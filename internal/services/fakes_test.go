package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	"github.com/yungbote/neurobridge-content/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/qdrant"
)

type fakeGateway struct {
	text     string
	obj      map[string]any
	err      error
	fallback bool
	prompts  []string
	mu       sync.Mutex
}

func (g *fakeGateway) Available() bool { return true }

func (g *fakeGateway) Invoke(_ context.Context, prompt, _ string) (LLMResult, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return LLMResult{}, g.err
	}
	return LLMResult{Text: g.text, ModelName: "fake-model", UsedFallback: g.fallback}, nil
}

func (g *fakeGateway) InvokeJSON(_ context.Context, prompt, _, _ string, _ map[string]any) (map[string]any, LLMResult, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.err != nil {
		return nil, LLMResult{}, g.err
	}
	return g.obj, LLMResult{ModelName: "fake-model", UsedFallback: g.fallback}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	dim       int
	points    map[string]qdrant.Point
	deletes   int
	matches   []qdrant.Match
	searchErr error
	lastQuery qdrant.Filter
}

func newFakeStore() *fakeStore { return &fakeStore{points: map[string]qdrant.Point{}} }

func (s *fakeStore) EnsureCollection(_ context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim != 0 && s.dim != dim {
		return errors.New("dimension mismatch")
	}
	s.dim = dim
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, _ string, points []qdrant.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *fakeStore) Search(_ context.Context, _ string, _ []float32, topK int, filter qdrant.Filter) ([]qdrant.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = filter
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func (s *fakeStore) DeleteByFilter(_ context.Context, _ string, filter qdrant.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	for id, p := range s.points {
		if p.Payload["content_id"] == filter["content_id"] {
			delete(s.points, id)
		}
	}
	return nil
}

type fakeEmbedder struct {
	dim int
	err error
}

func (e fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		v := make([]float32, e.dim)
		v[i%e.dim] = 1
		out[i] = v
	}
	return out, nil
}

type learningFixture struct {
	db   *gorm.DB
	repo learning.LearningRepo
	dbc  dbctx.Context
	user uuid.UUID
	item *types.Content
	segs []*types.Segment
}

// newLearningFixture seeds a content item owned by a fresh user with a few segments.
func newLearningFixture(t *testing.T, texts ...string) *learningFixture {
	t.Helper()
	db := testutil.SQLite(t)
	f := &learningFixture{
		db:   db,
		repo: learning.NewLearningRepo(db, testutil.Logger(t)),
		dbc:  dbctx.Context{Ctx: context.Background(), Tx: db},
		user: uuid.New(),
	}
	f.item = testutil.SeedContent(t, context.Background(), db, f.user, "web", "article", "https://example.com/mars")
	if len(texts) > 0 {
		segs := make([]*types.Segment, 0, len(texts))
		for _, text := range texts {
			segs = append(segs, &types.Segment{Text: text, SectionPath: "Mars"})
		}
		stored, err := f.repo.ReplaceSegments(f.dbc, f.item.ID, segs)
		require.NoError(t, err)
		f.segs = stored
	}
	return f
}

var marsTexts = []string{
	"Mars is the fourth planet from the Sun. Mars is often called the red planet because iron oxide dust covers its surface.",
	"The atmosphere of Mars is thin and made mostly of carbon dioxide. Dust storms on Mars can cover the whole planet for weeks.",
	"Mars has two small moons named Phobos and Deimos. Phobos orbits Mars closer than any other known moon orbits its planet.",
}
