package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	learndom "github.com/yungbote/neurobridge-content/internal/domain/learning"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const (
	quizSystemPrompt = "You write quiz questions that check understanding of the provided text. Every answer must be supported by the text."

	blank = "_____"
)

var difficulties = map[string]bool{"easy": true, "medium": true, "hard": true}

type QuizConfig struct {
	DefaultCount   int
	MaxCount       int
	MasteryRate    float64
	MaxPromptChars int
}

func QuizConfigFromEnv() QuizConfig {
	return QuizConfig{
		DefaultCount:   envutil.Int("QUIZ_DEFAULT_QUESTIONS", 5),
		MaxCount:       envutil.Int("QUIZ_MAX_QUESTIONS", 20),
		MasteryRate:    envutil.Float("MASTERY_RATE", 0.3),
		MaxPromptChars: envutil.Int("QUIZ_MAX_PROMPT_CHARS", 10000),
	}
}

type GenerateQuizInput struct {
	ContentID     uuid.UUID
	UserID        uuid.UUID
	Difficulty    string
	QuestionCount int
}

type QuizResponse struct {
	QuestionID uuid.UUID `json:"question_id"`
	Response   string    `json:"response"`
}

type SubmitQuizInput struct {
	UserID         uuid.UUID
	QuizSetID      uuid.UUID
	Answers        []QuizResponse
	IdempotencyKey string
}

// SubmitResult is false on Created when the idempotency key was already used.
type SubmitResult struct {
	Attempt *types.QuizAttempt
	Created bool
}

type QuizService interface {
	Generate(ctx context.Context, in GenerateQuizInput) (*types.QuizSet, error)
	GetQuizSet(ctx context.Context, quizSetID uuid.UUID) (*types.QuizSet, error)
	Submit(ctx context.Context, in SubmitQuizInput) (*SubmitResult, error)
	Report(ctx context.Context, attemptID uuid.UUID) (*learning.AttemptReport, error)
}

type quizService struct {
	log   *logger.Logger
	llm   LLMGateway
	learn learning.LearningRepo
	cfg   QuizConfig
}

func NewQuizService(log *logger.Logger, llm LLMGateway, learn learning.LearningRepo, cfg QuizConfig) QuizService {
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = 5
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = 20
	}
	if cfg.MasteryRate <= 0 || cfg.MasteryRate > 1 {
		cfg.MasteryRate = 0.3
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 10000
	}
	return &quizService{log: log.With("service", "QuizService"), llm: llm, learn: learn, cfg: cfg}
}

var quizSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"questions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"kind":         map[string]any{"type": "string", "enum": []string{learndom.QuestionMultipleChoice, learndom.QuestionShortAnswer}},
					"prompt":       map[string]any{"type": "string"},
					"options":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"answer":       map[string]any{"type": "string"},
					"explanation":  map[string]any{"type": "string"},
					"concept_keys": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required":             []string{"kind", "prompt", "options", "answer", "explanation", "concept_keys"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"questions"},
	"additionalProperties": false,
}

// Generate builds and stores a quiz for the content. When the model fails or returns nothing
// valid, cloze questions are cut from the segments and the set is flagged as fallback.
func (s *quizService) Generate(ctx context.Context, in GenerateQuizInput) (*types.QuizSet, error) {
	if in.ContentID == uuid.Nil {
		return nil, apierr.InvalidArgument("content id required")
	}
	difficulty := strings.ToLower(strings.TrimSpace(in.Difficulty))
	if difficulty == "" {
		difficulty = "medium"
	}
	if !difficulties[difficulty] {
		return nil, apierr.InvalidArgument("unknown difficulty %q", in.Difficulty)
	}
	count := in.QuestionCount
	if count <= 0 {
		count = s.cfg.DefaultCount
	}
	if count > s.cfg.MaxCount {
		count = s.cfg.MaxCount
	}

	dbc := dbctx.Context{Ctx: ctx}
	segs, err := s.learn.ListSegments(dbc, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	concepts, _, err := s.learn.ListConcepts(dbc, in.ContentID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	keys := make(map[string]bool, len(concepts))
	var keyList []string
	for _, c := range concepts {
		keys[c.Key] = true
		keyList = append(keyList, c.Key)
	}

	set := &types.QuizSet{ContentID: in.ContentID, UserID: in.UserID, Difficulty: difficulty}
	body := joinSegmentText(segs, s.cfg.MaxPromptChars)
	if body != "" && s.llm.Available() {
		prompt := fmt.Sprintf("Difficulty: %s\nQuestions: %d\nKnown concept keys: %s\n\nText:\n%s\n\nWrite the questions. Multiple choice questions have four options and the answer is the exact text of one option. Short answer questions have a brief answer. Tag each question with the concept keys it checks.",
			difficulty, count, strings.Join(keyList, ", "), body)
		obj, meta, err := s.llm.InvokeJSON(ctx, prompt, quizSystemPrompt, "content_quiz", quizSchema)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn("quiz generation failed; using cloze questions", "content_id", in.ContentID, "error", err)
		} else {
			set.Questions = questionsFromJSON(obj, keys, count)
			set.ModelName, set.UsedFallback = meta.ModelName, meta.UsedFallback
		}
	}
	if len(set.Questions) == 0 {
		set.Questions = clozeQuestions(segs, concepts, count)
		set.ModelName, set.UsedFallback = heuristicModel, true
	}
	if len(set.Questions) == 0 {
		return nil, apierr.InvalidArgument("content %s has no text to build a quiz from", in.ContentID)
	}

	stored, err := s.learn.CreateQuizSet(dbc, set)
	if err != nil {
		return nil, fmt.Errorf("create quiz set: %w", err)
	}
	seed, _ := json.Marshal(map[string]any{
		"quiz_set_id":    stored.ID,
		"difficulty":     difficulty,
		"question_count": len(stored.Questions),
	})
	if _, err := s.learn.AppendArtifact(dbc, &types.Artifact{
		ContentID:    in.ContentID,
		ArtifactType: content.ArtifactQuizSeed,
		Payload:      datatypes.JSON(seed),
		ModelName:    stored.ModelName,
		UsedFallback: stored.UsedFallback,
	}); err != nil {
		return nil, fmt.Errorf("append quiz seed: %w", err)
	}
	s.log.Info("quiz generated", "content_id", in.ContentID, "quiz_set_id", stored.ID, "questions", len(stored.Questions), "used_fallback", stored.UsedFallback)
	return stored, nil
}

func (s *quizService) GetQuizSet(ctx context.Context, quizSetID uuid.UUID) (*types.QuizSet, error) {
	set, err := s.learn.GetQuizSet(dbctx.Context{Ctx: ctx}, quizSetID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, apierr.NotFound("quiz set %s not found", quizSetID)
	}
	return set, nil
}

// Submit grades the answers and stores the attempt. A reused idempotency key returns the
// stored attempt without grading again.
func (s *quizService) Submit(ctx context.Context, in SubmitQuizInput) (*SubmitResult, error) {
	key := strings.TrimSpace(in.IdempotencyKey)
	if in.UserID == uuid.Nil || in.QuizSetID == uuid.Nil || key == "" {
		return nil, apierr.InvalidArgument("user, quiz set and idempotency key required")
	}
	set, err := s.GetQuizSet(ctx, in.QuizSetID)
	if err != nil {
		return nil, err
	}

	responses := make(map[uuid.UUID]string, len(in.Answers))
	for _, a := range in.Answers {
		responses[a.QuestionID] = a.Response
	}

	attempt := &types.QuizAttempt{
		UserID:         in.UserID,
		QuizSetID:      set.ID,
		IdempotencyKey: key,
		Total:          len(set.Questions),
	}
	var outcomes []learning.ConceptOutcome
	total := 0.0
	for _, q := range set.Questions {
		resp := responses[q.ID]
		outcome := gradeQuestion(q, resp)
		value := learndom.OutcomeValue(outcome)
		attempt.Answers = append(attempt.Answers, &types.QuizAnswer{
			QuestionID: q.ID,
			Response:   resp,
			Outcome:    outcome,
			Score:      value,
		})
		total += value
		if outcome == learndom.OutcomeCorrect {
			attempt.CorrectCount++
		}
		for _, k := range jsonStrings(q.ConceptKeys) {
			outcomes = append(outcomes, learning.ConceptOutcome{ConceptKey: k, Outcome: value})
		}
	}
	if attempt.Total > 0 {
		attempt.Score = total / float64(attempt.Total)
	}

	stored, created, err := s.learn.SubmitAttempt(dbctx.Context{Ctx: ctx}, set.ContentID, attempt, outcomes, s.cfg.MasteryRate)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	if created {
		s.log.Info("quiz attempt graded", "quiz_set_id", set.ID, "attempt_id", stored.ID, "score", stored.Score)
	}
	return &SubmitResult{Attempt: stored, Created: created}, nil
}

func (s *quizService) Report(ctx context.Context, attemptID uuid.UUID) (*learning.AttemptReport, error) {
	report, err := s.learn.GetAttemptReport(dbctx.Context{Ctx: ctx}, attemptID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, apierr.NotFound("quiz attempt %s not found", attemptID)
	}
	return report, nil
}

func gradeQuestion(q *types.QuizQuestion, response string) string {
	resp := normalizeAnswer(response)
	if resp == "" {
		return learndom.OutcomeIncorrect
	}
	answer := normalizeAnswer(q.Answer)
	if q.Kind == learndom.QuestionMultipleChoice {
		if resp == answer {
			return learndom.OutcomeCorrect
		}
		options := jsonStrings(q.Options)
		if idx, ok := optionLetter(resp); ok && idx < len(options) && normalizeAnswer(options[idx]) == answer {
			return learndom.OutcomeCorrect
		}
		return learndom.OutcomeIncorrect
	}
	if resp == answer {
		return learndom.OutcomeCorrect
	}
	want := contentTerms(answer)
	if len(want) == 0 {
		want = tokenize(answer)
	}
	if len(want) == 0 {
		return learndom.OutcomeIncorrect
	}
	have := map[string]bool{}
	for _, t := range tokenize(resp) {
		have[t] = true
	}
	hit := 0
	for _, t := range want {
		if have[t] {
			hit++
		}
	}
	switch ratio := float64(hit) / float64(len(want)); {
	case ratio >= 0.8:
		return learndom.OutcomeCorrect
	case ratio >= 0.4:
		return learndom.OutcomePartial
	}
	return learndom.OutcomeIncorrect
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.TrimFunc(s, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
}

// optionLetter reads "b" or "b)" style responses as an option index.
func optionLetter(resp string) (int, bool) {
	r := []rune(resp)
	if len(r) != 1 || r[0] < 'a' || r[0] > 'z' {
		return 0, false
	}
	return int(r[0] - 'a'), true
}

func questionsFromJSON(obj map[string]any, knownKeys map[string]bool, max int) []*types.QuizQuestion {
	items, _ := obj["questions"].([]any)
	var out []*types.QuizQuestion
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		q := &types.QuizQuestion{
			Kind:        stringFrom(m, "kind"),
			Prompt:      stringFrom(m, "prompt"),
			Answer:      stringFrom(m, "answer"),
			Explanation: stringFrom(m, "explanation"),
		}
		if q.Prompt == "" || q.Answer == "" {
			continue
		}
		options := stringsFrom(m["options"])
		switch q.Kind {
		case learndom.QuestionMultipleChoice:
			if len(options) < 2 || !containsNormalized(options, q.Answer) {
				continue
			}
			q.Options = jsonOf(options)
		case learndom.QuestionShortAnswer:
		default:
			continue
		}
		var keys []string
		for _, k := range stringsFrom(m["concept_keys"]) {
			if k = conceptKey(k); knownKeys[k] {
				keys = append(keys, k)
			}
		}
		q.ConceptKeys = jsonOf(keys)
		out = append(out, q)
		if len(out) == max {
			break
		}
	}
	return out
}

// clozeQuestions blanks a concept term out of a sentence that mentions it. With four or
// more concepts the question becomes multiple choice using other concept names.
func clozeQuestions(segs []*types.Segment, concepts []*types.Concept, max int) []*types.QuizQuestion {
	terms := make([]*types.Concept, 0, len(concepts))
	terms = append(terms, concepts...)
	if len(terms) == 0 {
		ks, _ := keywordConcepts(segs, max*2)
		terms = ks
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Importance > terms[j].Importance })

	var all []string
	for _, seg := range segs {
		all = append(all, sentences(seg.Text)...)
	}
	used := map[int]bool{}
	var out []*types.QuizQuestion
	for ci, c := range terms {
		if len(out) == max {
			break
		}
		word := strings.ToLower(strings.ReplaceAll(c.Key, "_", " "))
		for si, sent := range all {
			lower := strings.ToLower(sent)
			if used[si] || len(sent) < 30 || len(lower) != len(sent) {
				continue
			}
			pos := indexWord(lower, word)
			if pos < 0 {
				continue
			}
			used[si] = true
			answer := sent[pos : pos+len(word)]
			q := &types.QuizQuestion{
				Kind:        learndom.QuestionShortAnswer,
				Prompt:      "Fill in the blank: " + sent[:pos] + blank + sent[pos+len(word):],
				Answer:      answer,
				Explanation: sent,
				ConceptKeys: jsonOf([]string{c.Key}),
			}
			if opts := distractors(terms, ci, 3); len(opts) == 3 {
				options := append(opts, c.Name)
				sort.Strings(options)
				q.Kind = learndom.QuestionMultipleChoice
				q.Answer = c.Name
				q.Options = jsonOf(options)
			}
			out = append(out, q)
			break
		}
	}
	return out
}

func distractors(terms []*types.Concept, skip, n int) []string {
	var out []string
	for i := 1; i < len(terms) && len(out) < n; i++ {
		j := (skip + i) % len(terms)
		if j != skip && terms[j].Name != "" && !strings.EqualFold(terms[j].Name, terms[skip].Name) {
			out = append(out, terms[j].Name)
		}
	}
	return out
}

// indexWord finds word in s at word boundaries.
func indexWord(s, word string) int {
	if word == "" {
		return -1
	}
	from := 0
	for {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(word)
		before := i == 0 || !isWordByte(s[i-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return i
		}
		from = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}

func containsNormalized(options []string, answer string) bool {
	want := normalizeAnswer(answer)
	for _, o := range options {
		if normalizeAnswer(o) == want {
			return true
		}
	}
	return false
}

func jsonOf(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return datatypes.JSON(b)
}

func jsonStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	_ = json.Unmarshal(raw, &out)
	return out
}
