package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type recordingMirror struct {
	concepts int
	err      error
}

func (m *recordingMirror) MirrorConcepts(_ context.Context, _ uuid.UUID, concepts []*types.Concept, _ []*types.ConceptEdge) error {
	m.concepts = len(concepts)
	return m.err
}

func TestSummarizeHeuristicWhenNoModel(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	svc := NewAnalysisService(logger.Nop(), NewLLMGateway(logger.Nop(), nil, nil), f.repo, nil, AnalysisConfig{})

	res, err := svc.Summarize(context.Background(), AnalysisInput{ContentID: f.item.ID, Title: "Mars", Segments: f.segs})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, heuristicModel, res.ModelName)
	assert.Contains(t, res.Global.Summary, "fourth planet")
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "Mars", res.Sections[0].SectionPath)
	assert.Equal(t, 2, res.Sections[0].EndPosition)

	for _, kind := range []string{content.ArtifactSummaryGlobal, content.ArtifactSummarySection, content.ArtifactQASeed} {
		art, err := f.repo.LatestArtifact(f.dbc, f.item.ID, kind)
		require.NoError(t, err)
		require.NotNil(t, art, kind)
		assert.True(t, art.UsedFallback, kind)
	}
}

func TestSummarizeWithModel(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	gw := &fakeGateway{
		text: "Mars facts.",
		obj: map[string]any{
			"summary":             "Mars is a cold, dusty planet with two moons.",
			"key_points":          []any{"Red from iron oxide", "Thin CO2 atmosphere"},
			"suggested_questions": []any{"Why is Mars red?"},
		},
	}
	svc := NewAnalysisService(logger.Nop(), gw, f.repo, nil, AnalysisConfig{})

	res, err := svc.Summarize(context.Background(), AnalysisInput{ContentID: f.item.ID, Title: "Mars", Segments: f.segs})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	assert.Equal(t, "fake-model", res.ModelName)
	assert.Equal(t, "Mars facts.", res.Sections[0].Summary)

	art, err := f.repo.LatestArtifact(f.dbc, f.item.ID, content.ArtifactQASeed)
	require.NoError(t, err)
	var seed map[string][]string
	require.NoError(t, json.Unmarshal(art.Payload, &seed))
	assert.Equal(t, []string{"Why is Mars red?"}, seed["questions"])
}

func TestGroupSectionsSplitsAndMerges(t *testing.T) {
	var segs []*types.Segment
	for i := 0; i < 10; i++ {
		segs = append(segs, &types.Segment{Position: i, Text: "0123456789"})
	}
	groups := groupSections(segs, 25, 0)
	require.Len(t, groups, 5)
	assert.Equal(t, "Part 1", groups[0].path)

	merged := groupSections(segs, 25, 2)
	require.Len(t, merged, 2)
	total := 0
	for _, g := range merged {
		total += len(g.segments)
	}
	assert.Equal(t, 10, total)
}

func TestExtractConceptsKeywordFallback(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	mirror := &recordingMirror{err: errors.New("graph offline")}
	svc := NewAnalysisService(logger.Nop(), &fakeGateway{err: ErrNoLLMOutput}, f.repo, mirror, AnalysisConfig{MaxConcepts: 5})

	res, err := svc.ExtractConcepts(context.Background(), AnalysisInput{ContentID: f.item.ID, Segments: f.segs})
	require.NoError(t, err)
	assert.True(t, res.UsedFallback)
	require.NotEmpty(t, res.Concepts)
	assert.LessOrEqual(t, len(res.Concepts), 5)
	assert.Equal(t, "mars", res.Concepts[0].Key)
	assert.Equal(t, 1.0, res.Concepts[0].Importance)
	assert.Equal(t, len(res.Concepts), mirror.concepts)

	nodes, _, err := f.repo.ListConcepts(f.dbc, f.item.ID)
	require.NoError(t, err)
	assert.Len(t, nodes, len(res.Concepts))
}

func TestExtractConceptsFromModel(t *testing.T) {
	f := newLearningFixture(t, marsTexts...)
	gw := &fakeGateway{obj: map[string]any{
		"concepts": []any{
			map[string]any{"name": "Iron oxide", "summary": "Rust", "importance": 0.7},
			map[string]any{"name": "Mars", "summary": "Planet", "importance": 1.4},
		},
		"edges": []any{
			map[string]any{"from": "Iron oxide", "to": "Mars", "relation": "colors", "weight": 0.8},
			map[string]any{"from": "Mars", "to": "Jupiter", "relation": "near", "weight": 0.1},
		},
	}}
	svc := NewAnalysisService(logger.Nop(), gw, f.repo, nil, AnalysisConfig{})

	res, err := svc.ExtractConcepts(context.Background(), AnalysisInput{ContentID: f.item.ID, Segments: f.segs})
	require.NoError(t, err)
	assert.False(t, res.UsedFallback)
	require.Len(t, res.Concepts, 2)
	assert.Equal(t, "iron_oxide", res.Concepts[0].Key)
	assert.Equal(t, 1.0, res.Concepts[1].Importance)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, "colors", res.Edges[0].Relation)
}
