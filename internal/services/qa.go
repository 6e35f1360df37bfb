package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const (
	qaSystemPrompt = "Answer the question using only the numbered context. Cite the passages you used like [1]. If the context does not contain the answer, say that it does not."

	RetrievalVector  = "vector"
	RetrievalLexical = "lexical"
)

type QAConfig struct {
	TopK            int
	MaxContextChars int
}

func QAConfigFromEnv() QAConfig {
	return QAConfig{
		TopK:            envutil.Int("QA_TOP_K", 6),
		MaxContextChars: envutil.Int("QA_MAX_CONTEXT_CHARS", 8000),
	}
}

// AskInput scopes retrieval by content only. Chunks are shared by every owner of the content
// and carry the id of the user whose job indexed them, so UserID is the caller of record and
// never narrows the search.
type AskInput struct {
	ContentID uuid.UUID
	UserID    uuid.UUID
	Question  string
}

type Citation struct {
	Index       int     `json:"index"`
	SegmentID   string  `json:"segment_id"`
	ChunkID     string  `json:"chunk_id,omitempty"`
	Position    int     `json:"position"`
	SectionPath string  `json:"section_path,omitempty"`
	StartMs     *int64  `json:"start_ms,omitempty"`
	EndMs       *int64  `json:"end_ms,omitempty"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

type AskResult struct {
	Answer        string     `json:"answer"`
	Citations     []Citation `json:"citations"`
	Confidence    float64    `json:"confidence"`
	ModelName     string     `json:"model_name"`
	UsedFallback  bool       `json:"used_fallback"`
	RetrievalMode string     `json:"retrieval_mode"`
}

type QAService interface {
	Answer(ctx context.Context, in AskInput) (*AskResult, error)
}

type qaService struct {
	log   *logger.Logger
	index VectorIndex
	learn learning.LearningRepo
	llm   LLMGateway
	cfg   QAConfig
}

func NewQAService(log *logger.Logger, index VectorIndex, learn learning.LearningRepo, llm LLMGateway, cfg QAConfig) QAService {
	if cfg.TopK <= 0 {
		cfg.TopK = 6
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 8000
	}
	return &qaService{log: log.With("service", "QAService"), index: index, learn: learn, llm: llm, cfg: cfg}
}

// Answer retrieves context for the question and composes a grounded answer. An unavailable
// vector store is returned as an error; an empty one falls back to lexical retrieval.
func (s *qaService) Answer(ctx context.Context, in AskInput) (*AskResult, error) {
	question := strings.TrimSpace(in.Question)
	if in.ContentID == uuid.Nil || question == "" {
		return nil, apierr.InvalidArgument("content id and question required")
	}

	res := &AskResult{RetrievalMode: RetrievalVector}
	hits, err := s.index.SearchChunks(ctx, ChunkQuery{ContentID: in.ContentID, Query: question, TopK: s.cfg.TopK})
	if err != nil {
		return nil, err
	}
	for i, h := range hits {
		res.Citations = append(res.Citations, Citation{
			Index:       i + 1,
			SegmentID:   h.SegmentID,
			ChunkID:     h.ChunkID,
			Position:    h.SegmentPosition,
			SectionPath: h.SectionPath,
			StartMs:     h.StartMs,
			EndMs:       h.EndMs,
			Text:        h.Text,
			Score:       h.Score,
		})
	}
	if len(res.Citations) == 0 {
		res.RetrievalMode = RetrievalLexical
		res.Citations, err = s.lexicalCitations(ctx, in.ContentID, question)
		if err != nil {
			return nil, err
		}
	}

	res.Confidence = 0.2
	if len(res.Citations) > 0 {
		res.Confidence = clamp(res.Citations[0].Score, 0.2, 0.95)
	}

	if len(res.Citations) > 0 && s.llm.Available() {
		out, err := s.llm.Invoke(ctx, s.prompt(question, res.Citations), qaSystemPrompt)
		if err == nil {
			res.Answer, res.ModelName, res.UsedFallback = out.Text, out.ModelName, out.UsedFallback
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("qa generation failed; answering from top citation", "content_id", in.ContentID, "error", err)
	}
	res.Answer = heuristicAnswer(res.Citations)
	res.ModelName = heuristicModel
	res.UsedFallback = true
	return res, nil
}

// lexicalCitations scores persisted segments by question-term overlap. Raw overlap in [0,1]
// is mapped onto [0.2,0.5] so it never outranks a vector hit.
func (s *qaService) lexicalCitations(ctx context.Context, contentID uuid.UUID, question string) ([]Citation, error) {
	segs, err := s.learn.ListSegments(dbctx.Context{Ctx: ctx}, contentID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	terms := map[string]bool{}
	for _, t := range contentTerms(question) {
		terms[t] = true
	}
	if len(terms) == 0 {
		for _, t := range tokenize(question) {
			terms[t] = true
		}
	}

	type scored struct {
		idx int
		raw float64
	}
	ranked := make([]scored, 0, len(segs))
	for i, seg := range segs {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		seen := map[string]bool{}
		for _, t := range tokenize(seg.Text) {
			if terms[t] {
				seen[t] = true
			}
		}
		raw := 0.0
		if len(terms) > 0 {
			raw = float64(len(seen)) / float64(len(terms))
		}
		ranked = append(ranked, scored{idx: i, raw: raw})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].raw > ranked[b].raw })
	if len(ranked) > s.cfg.TopK {
		ranked = ranked[:s.cfg.TopK]
	}

	out := make([]Citation, 0, len(ranked))
	for i, r := range ranked {
		seg := segs[r.idx]
		out = append(out, Citation{
			Index:       i + 1,
			SegmentID:   seg.ID.String(),
			Position:    seg.Position,
			SectionPath: seg.SectionPath,
			StartMs:     seg.StartMs,
			EndMs:       seg.EndMs,
			Text:        seg.Text,
			Score:       0.2 + 0.3*r.raw,
		})
	}
	return out, nil
}

func (s *qaService) prompt(question string, cites []Citation) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	budget := s.cfg.MaxContextChars
	for _, c := range cites {
		entry := fmt.Sprintf("[%d]", c.Index)
		if c.SectionPath != "" {
			entry += " (" + c.SectionPath + ")"
		}
		entry += " " + strings.TrimSpace(c.Text) + "\n"
		if b.Len()+len(entry) > budget && c.Index > 1 {
			break
		}
		b.WriteString(entry)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func heuristicAnswer(cites []Citation) string {
	if len(cites) == 0 {
		return "This content does not have any text to answer from yet."
	}
	top := cites[0]
	answer := leadSentences(top.Text, 3, 500)
	if answer == "" {
		answer = clip(top.Text, 500)
	}
	return fmt.Sprintf("%s [%d]", answer, top.Index)
}
