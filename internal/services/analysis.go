package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-content/internal/data/graph"
	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const (
	summarySystemPrompt = "You summarize learning material. Use only the provided text. Be concise and factual."
	conceptSystemPrompt = "You extract the key concepts a learner must understand from the provided text, and how they relate. Use only the provided text."
)

type AnalysisConfig struct {
	MaxPromptChars     int
	SectionChars       int
	MaxSections        int
	SectionParallelism int
	MaxConcepts        int
}

func AnalysisConfigFromEnv() AnalysisConfig {
	return AnalysisConfig{
		MaxPromptChars:     envutil.Int("ANALYSIS_MAX_PROMPT_CHARS", 12000),
		SectionChars:       envutil.Int("ANALYSIS_SECTION_CHARS", 4000),
		MaxSections:        envutil.Int("ANALYSIS_MAX_SECTIONS", 12),
		SectionParallelism: envutil.Int("ANALYSIS_SECTION_PARALLELISM", 4),
		MaxConcepts:        envutil.Int("ANALYSIS_MAX_CONCEPTS", 20),
	}
}

func (c AnalysisConfig) withDefaults() AnalysisConfig {
	if c.MaxPromptChars <= 0 {
		c.MaxPromptChars = 12000
	}
	if c.SectionChars <= 0 {
		c.SectionChars = 4000
	}
	if c.MaxSections <= 0 {
		c.MaxSections = 12
	}
	if c.SectionParallelism <= 0 {
		c.SectionParallelism = 4
	}
	if c.MaxConcepts <= 0 {
		c.MaxConcepts = 20
	}
	return c
}

// AnalysisInput is the persisted text of one content item.
type AnalysisInput struct {
	ContentID uuid.UUID
	Title     string
	Segments  []*types.Segment
}

type GlobalSummary struct {
	Summary            string   `json:"summary"`
	KeyPoints          []string `json:"key_points"`
	SuggestedQuestions []string `json:"suggested_questions,omitempty"`
}

type SectionSummary struct {
	SectionPath   string `json:"section_path"`
	Summary       string `json:"summary"`
	StartPosition int    `json:"start_position"`
	EndPosition   int    `json:"end_position"`
	StartMs       *int64 `json:"start_ms,omitempty"`
	EndMs         *int64 `json:"end_ms,omitempty"`
}

type SummaryResult struct {
	Global       GlobalSummary
	Sections     []SectionSummary
	ModelName    string
	UsedFallback bool
}

type ConceptResult struct {
	Concepts     []*types.Concept
	Edges        []*types.ConceptEdge
	ModelName    string
	UsedFallback bool
}

type AnalysisService interface {
	Summarize(ctx context.Context, in AnalysisInput) (*SummaryResult, error)
	ExtractConcepts(ctx context.Context, in AnalysisInput) (*ConceptResult, error)
}

type analysisService struct {
	log    *logger.Logger
	llm    LLMGateway
	learn  learning.LearningRepo
	mirror graph.ConceptMirror
	cfg    AnalysisConfig
}

func NewAnalysisService(log *logger.Logger, llm LLMGateway, learn learning.LearningRepo, mirror graph.ConceptMirror, cfg AnalysisConfig) AnalysisService {
	return &analysisService{
		log:    log.With("service", "AnalysisService"),
		llm:    llm,
		learn:  learn,
		mirror: mirror,
		cfg:    cfg.withDefaults(),
	}
}

var summarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":             map[string]any{"type": "string"},
		"key_points":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"suggested_questions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"summary", "key_points", "suggested_questions"},
	"additionalProperties": false,
}

// Summarize writes the global and per-section summaries plus the qa seed. Every artifact
// is appended even when it came from the heuristic path.
func (s *analysisService) Summarize(ctx context.Context, in AnalysisInput) (*SummaryResult, error) {
	if in.ContentID == uuid.Nil {
		return nil, fmt.Errorf("content id required")
	}
	res := &SummaryResult{}

	body := joinSegmentText(in.Segments, s.cfg.MaxPromptChars)
	if body != "" && s.llm.Available() {
		prompt := fmt.Sprintf("Title: %s\n\nText:\n%s\n\nWrite a summary of at most five sentences, three to seven key points, and up to five questions a learner could ask about this text.", in.Title, body)
		obj, meta, err := s.llm.InvokeJSON(ctx, prompt, summarySystemPrompt, "content_summary", summarySchema)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("summary generation failed; using heuristic", "content_id", in.ContentID, "error", err)
		} else if g := globalFromJSON(obj); g.Summary != "" {
			res.Global, res.ModelName, res.UsedFallback = g, meta.ModelName, meta.UsedFallback
		}
	}
	if res.Global.Summary == "" {
		res.Global = heuristicSummary(in)
		res.ModelName = heuristicModel
		res.UsedFallback = true
	}

	sections, sectionsFallback, err := s.summarizeSections(ctx, in)
	if err != nil {
		return nil, err
	}
	res.Sections = sections
	res.UsedFallback = res.UsedFallback || sectionsFallback

	dbc := dbctx.Context{Ctx: ctx}
	if err := s.appendArtifact(dbc, in.ContentID, content.ArtifactSummaryGlobal, res.Global, res.ModelName, res.UsedFallback); err != nil {
		return nil, err
	}
	if err := s.appendArtifact(dbc, in.ContentID, content.ArtifactSummarySection, map[string]any{"sections": res.Sections}, res.ModelName, sectionsFallback); err != nil {
		return nil, err
	}
	qaSeed := map[string]any{"questions": res.Global.SuggestedQuestions, "key_points": res.Global.KeyPoints}
	if err := s.appendArtifact(dbc, in.ContentID, content.ArtifactQASeed, qaSeed, res.ModelName, res.UsedFallback); err != nil {
		return nil, err
	}
	s.log.Info("summaries stored", "content_id", in.ContentID, "sections", len(res.Sections), "model", res.ModelName, "used_fallback", res.UsedFallback)
	return res, nil
}

func (s *analysisService) summarizeSections(ctx context.Context, in AnalysisInput) ([]SectionSummary, bool, error) {
	groups := groupSections(in.Segments, s.cfg.SectionChars, s.cfg.MaxSections)
	out := make([]SectionSummary, len(groups))
	var (
		mu       sync.Mutex
		fallback bool
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.SectionParallelism)
	for i, g := range groups {
		eg.Go(func() error {
			text := joinSegmentText(g.segments, s.cfg.SectionChars)
			summary := ""
			if s.llm.Available() {
				prompt := fmt.Sprintf("Section: %s\n\nText:\n%s\n\nSummarize this section in one or two sentences.", g.path, text)
				r, err := s.llm.Invoke(egCtx, prompt, summarySystemPrompt)
				if err != nil && egCtx.Err() != nil {
					return egCtx.Err()
				}
				if err == nil {
					summary = r.Text
					if r.UsedFallback {
						mu.Lock()
						fallback = true
						mu.Unlock()
					}
				}
			}
			if summary == "" {
				summary = leadSentences(text, 2, 400)
				mu.Lock()
				fallback = true
				mu.Unlock()
			}
			out[i] = SectionSummary{
				SectionPath:   g.path,
				Summary:       summary,
				StartPosition: g.segments[0].Position,
				EndPosition:   g.segments[len(g.segments)-1].Position,
				StartMs:       g.segments[0].StartMs,
				EndMs:         g.segments[len(g.segments)-1].EndMs,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, false, err
	}
	return out, fallback, nil
}

func (s *analysisService) appendArtifact(dbc dbctx.Context, contentID uuid.UUID, kind string, payload any, model string, usedFallback bool) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if _, err := s.learn.AppendArtifact(dbc, &types.Artifact{
		ContentID:    contentID,
		ArtifactType: kind,
		Payload:      datatypes.JSON(b),
		ModelName:    model,
		UsedFallback: usedFallback,
	}); err != nil {
		return fmt.Errorf("append %s: %w", kind, err)
	}
	return nil
}

var conceptSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"concepts": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":       map[string]any{"type": "string"},
					"summary":    map[string]any{"type": "string"},
					"importance": map[string]any{"type": "number"},
				},
				"required":             []string{"name", "summary", "importance"},
				"additionalProperties": false,
			},
		},
		"edges": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"from":     map[string]any{"type": "string"},
					"to":       map[string]any{"type": "string"},
					"relation": map[string]any{"type": "string"},
					"weight":   map[string]any{"type": "number"},
				},
				"required":             []string{"from", "to", "relation", "weight"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"concepts", "edges"},
	"additionalProperties": false,
}

// ExtractConcepts replaces the concept graph of the content and mirrors it when a graph
// store is configured.
func (s *analysisService) ExtractConcepts(ctx context.Context, in AnalysisInput) (*ConceptResult, error) {
	if in.ContentID == uuid.Nil {
		return nil, fmt.Errorf("content id required")
	}
	var (
		concepts []*types.Concept
		edges    []learning.ConceptEdgeInput
		res      = &ConceptResult{}
	)
	body := joinSegmentText(in.Segments, s.cfg.MaxPromptChars)
	if body != "" && s.llm.Available() {
		prompt := fmt.Sprintf("Title: %s\n\nText:\n%s\n\nList at most %d concepts with a one-sentence summary and an importance between 0 and 1, then the relations between them (edges reference concept names).", in.Title, body, s.cfg.MaxConcepts)
		obj, meta, err := s.llm.InvokeJSON(ctx, prompt, conceptSystemPrompt, "content_concepts", conceptSchema)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("concept extraction failed; using keyword heuristic", "content_id", in.ContentID, "error", err)
		} else {
			concepts, edges = conceptsFromJSON(obj, s.cfg.MaxConcepts)
			res.ModelName, res.UsedFallback = meta.ModelName, meta.UsedFallback
		}
	}
	if len(concepts) == 0 {
		concepts, edges = keywordConcepts(in.Segments, s.cfg.MaxConcepts)
		res.ModelName, res.UsedFallback = heuristicModel, true
	}

	stored, storedEdges, err := s.learn.ReplaceConcepts(dbctx.Context{Ctx: ctx}, in.ContentID, concepts, edges)
	if err != nil {
		return nil, fmt.Errorf("replace concepts: %w", err)
	}
	res.Concepts, res.Edges = stored, storedEdges

	if s.mirror != nil {
		if err := s.mirror.MirrorConcepts(ctx, in.ContentID, stored, storedEdges); err != nil {
			s.log.Warn("concept mirror failed", "content_id", in.ContentID, "error", err)
		}
	}
	s.log.Info("concepts stored", "content_id", in.ContentID, "concepts", len(stored), "edges", len(storedEdges), "used_fallback", res.UsedFallback)
	return res, nil
}

const heuristicModel = "heuristic"

type sectionGroup struct {
	path     string
	segments []*types.Segment
}

// groupSections gathers consecutive segments sharing a section path. Untitled runs are split
// every sectionChars characters; when there are more than maxSections groups, neighbours are
// merged until they fit.
func groupSections(segs []*types.Segment, sectionChars, maxSections int) []sectionGroup {
	var groups []sectionGroup
	size := 0
	for _, seg := range segs {
		if seg == nil || strings.TrimSpace(seg.Text) == "" {
			continue
		}
		n := len(groups)
		samePath := n > 0 && groups[n-1].path == seg.SectionPath
		if samePath && (seg.SectionPath != "" || size+len(seg.Text) <= sectionChars) {
			groups[n-1].segments = append(groups[n-1].segments, seg)
			size += len(seg.Text)
			continue
		}
		groups = append(groups, sectionGroup{path: seg.SectionPath, segments: []*types.Segment{seg}})
		size = len(seg.Text)
	}
	for maxSections > 0 && len(groups) > maxSections {
		merged := make([]sectionGroup, 0, (len(groups)+1)/2)
		for i := 0; i < len(groups); i += 2 {
			g := groups[i]
			if i+1 < len(groups) {
				g.segments = append(append([]*types.Segment{}, g.segments...), groups[i+1].segments...)
			}
			merged = append(merged, g)
		}
		groups = merged
	}
	for i := range groups {
		if groups[i].path == "" {
			groups[i].path = fmt.Sprintf("Part %d", i+1)
		}
	}
	return groups
}

func joinSegmentText(segs []*types.Segment, maxChars int) string {
	var b strings.Builder
	for _, seg := range segs {
		if seg == nil || strings.TrimSpace(seg.Text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.TrimSpace(seg.Text))
		if maxChars > 0 && b.Len() >= maxChars {
			break
		}
	}
	return clip(b.String(), maxChars)
}

func leadSentences(text string, n, maxChars int) string {
	ss := sentences(text)
	if len(ss) > n {
		ss = ss[:n]
	}
	return clip(strings.Join(ss, " "), maxChars)
}

func heuristicSummary(in AnalysisInput) GlobalSummary {
	g := GlobalSummary{Summary: leadSentences(joinSegmentText(in.Segments, 4000), 3, 600)}
	if g.Summary == "" {
		g.Summary = strings.TrimSpace(in.Title)
	}
	for _, grp := range groupSections(in.Segments, 2000, 7) {
		if p := leadSentences(joinSegmentText(grp.segments, 1000), 1, 200); p != "" {
			g.KeyPoints = append(g.KeyPoints, p)
		}
	}
	return g
}

func globalFromJSON(obj map[string]any) GlobalSummary {
	return GlobalSummary{
		Summary:            stringFrom(obj, "summary"),
		KeyPoints:          stringsFrom(obj["key_points"]),
		SuggestedQuestions: stringsFrom(obj["suggested_questions"]),
	}
}

func conceptsFromJSON(obj map[string]any, max int) ([]*types.Concept, []learning.ConceptEdgeInput) {
	var concepts []*types.Concept
	items, _ := obj["concepts"].([]any)
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		name := stringFrom(m, "name")
		key := conceptKey(name)
		if key == "" {
			continue
		}
		concepts = append(concepts, &types.Concept{
			Key:        key,
			Name:       name,
			Summary:    stringFrom(m, "summary"),
			Importance: clamp(floatFrom(m, "importance", 0.5), 0, 1),
		})
		if len(concepts) == max {
			break
		}
	}
	var edges []learning.ConceptEdgeInput
	rawEdges, _ := obj["edges"].([]any)
	for _, it := range rawEdges {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		edges = append(edges, learning.ConceptEdgeInput{
			FromKey:  conceptKey(stringFrom(m, "from")),
			ToKey:    conceptKey(stringFrom(m, "to")),
			Relation: stringFrom(m, "relation"),
			Weight:   clamp(floatFrom(m, "weight", 0.5), 0, 1),
		})
	}
	return concepts, edges
}

// keywordConcepts ranks content terms by frequency and links terms that share segments.
func keywordConcepts(segs []*types.Segment, max int) ([]*types.Concept, []learning.ConceptEdgeInput) {
	freq := map[string]int{}
	perSegment := make([]map[string]bool, 0, len(segs))
	for _, seg := range segs {
		if seg == nil {
			continue
		}
		seen := map[string]bool{}
		for _, t := range contentTerms(seg.Text) {
			freq[t]++
			seen[t] = true
		}
		perSegment = append(perSegment, seen)
	}
	terms := make([]string, 0, len(freq))
	for t, n := range freq {
		if n >= 2 || len(freq) <= max {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > max {
		terms = terms[:max]
	}
	if len(terms) == 0 {
		return nil, nil
	}

	top := float64(freq[terms[0]])
	concepts := make([]*types.Concept, 0, len(terms))
	for _, t := range terms {
		concepts = append(concepts, &types.Concept{
			Key:        t,
			Name:       titleWord(t),
			Importance: float64(freq[t]) / top,
		})
	}

	var edges []learning.ConceptEdgeInput
	for i := 0; i < len(terms); i++ {
		for j := i + 1; j < len(terms); j++ {
			co := 0
			for _, seen := range perSegment {
				if seen[terms[i]] && seen[terms[j]] {
					co++
				}
			}
			if co == 0 {
				continue
			}
			lo := min(freq[terms[i]], freq[terms[j]])
			edges = append(edges, learning.ConceptEdgeInput{
				FromKey:  terms[i],
				ToKey:    terms[j],
				Relation: "co_occurs",
				Weight:   clamp(float64(co)/float64(lo), 0, 1),
			})
		}
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Weight > edges[j].Weight })
	if limit := 3 * len(terms); len(edges) > limit {
		edges = edges[:limit]
	}
	return concepts, edges
}

func titleWord(w string) string {
	r := []rune(w)
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
