package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/neurobridge-content/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-content/internal/data/repos/learning"
	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/domain/content"
	jobstate "github.com/yungbote/neurobridge-content/internal/domain/jobs"
	"github.com/yungbote/neurobridge-content/internal/observability"
	"github.com/yungbote/neurobridge-content/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-content/internal/platform/apierr"
	"github.com/yungbote/neurobridge-content/internal/platform/envutil"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

const (
	SummaryLevelGlobal  = "global"
	SummaryLevelSection = "section"
)

// ContentCatalog is the read side of the catalog this service depends on. The gorm catalog
// repository satisfies it.
type ContentCatalog interface {
	GetContentByID(dbc dbctx.Context, id uuid.UUID) (*types.Content, error)
	GetUserContent(dbc dbctx.Context, userID, contentID uuid.UUID) (*types.UserContent, error)
}

type FacadeConfig struct {
	Enabled         bool
	PipelineVersion string
}

func FacadeConfigFromEnv() FacadeConfig {
	return FacadeConfig{
		Enabled:         envutil.Bool("CONTENT_PIPELINE_ENABLED", true),
		PipelineVersion: envutil.String("PIPELINE_VERSION", "v1"),
	}
}

type JobStatus struct {
	JobID        uuid.UUID  `json:"job_id"`
	ContentID    uuid.UUID  `json:"content_id"`
	Status       string     `json:"status"`
	Stage        string     `json:"stage"`
	ProgressPct  int        `json:"progress_pct"`
	AttemptCount int        `json:"attempt_count"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
	FallbackUsed bool       `json:"fallback_used"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type SummaryView struct {
	ContentID    uuid.UUID       `json:"content_id"`
	Level        string          `json:"level"`
	Payload      json.RawMessage `json:"payload"`
	ModelName    string          `json:"model_name"`
	UsedFallback bool            `json:"used_fallback"`
	CreatedAt    time.Time       `json:"created_at"`
}

type ConceptGraph struct {
	Nodes   []*types.Concept     `json:"nodes"`
	Edges   []*types.ConceptEdge `json:"edges"`
	Mastery map[string]float64   `json:"mastery,omitempty"`
}

type AnswerReview struct {
	QuestionID    uuid.UUID `json:"question_id"`
	Position      int       `json:"position"`
	Prompt        string    `json:"prompt"`
	Response      string    `json:"response"`
	Outcome       string    `json:"outcome"`
	Score         float64   `json:"score"`
	CorrectAnswer string    `json:"correct_answer"`
	Explanation   string    `json:"explanation,omitempty"`
}

type AttemptView struct {
	AttemptID    uuid.UUID      `json:"attempt_id"`
	QuizSetID    uuid.UUID      `json:"quiz_set_id"`
	ContentID    uuid.UUID      `json:"content_id"`
	Score        float64        `json:"score"`
	CorrectCount int            `json:"correct_count"`
	Total        int            `json:"total"`
	Created      bool           `json:"created"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Answers      []AnswerReview `json:"answers,omitempty"`
}

// ContentLearningService is the single boundary in front of the pipeline. Every operation
// checks that the pipeline is enabled and that the caller has the content in their library.
type ContentLearningService interface {
	EnqueueAnalysis(ctx context.Context, userID, contentID uuid.UUID, forceRebuild bool) (*JobStatus, error)
	GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (*JobStatus, error)
	GetSummary(ctx context.Context, userID, contentID uuid.UUID, level string) (*SummaryView, error)
	Ask(ctx context.Context, userID, contentID uuid.UUID, question string) (*AskResult, error)
	CreateQuiz(ctx context.Context, userID, contentID uuid.UUID, difficulty string, questionCount int) (*types.QuizSet, error)
	SubmitQuiz(ctx context.Context, userID, quizSetID uuid.UUID, answers []QuizResponse, idempotencyKey string) (*AttemptView, error)
	GetConcepts(ctx context.Context, userID, contentID uuid.UUID) (*ConceptGraph, error)
	GetQuizAttempt(ctx context.Context, userID, attemptID uuid.UUID) (*AttemptView, error)
}

type contentLearningService struct {
	log      *logger.Logger
	cfg      FacadeConfig
	catalog  ContentCatalog
	jobs     jobs.ContentIngestJobRepo
	learn    learning.LearningRepo
	qa       QAService
	quiz     QuizService
	notifier JobNotifier
}

func NewContentLearningService(
	log *logger.Logger,
	cfg FacadeConfig,
	catalog ContentCatalog,
	jobRepo jobs.ContentIngestJobRepo,
	learn learning.LearningRepo,
	qa QAService,
	quiz QuizService,
	notifier JobNotifier,
) ContentLearningService {
	if strings.TrimSpace(cfg.PipelineVersion) == "" {
		cfg.PipelineVersion = "v1"
	}
	return &contentLearningService{
		log:      log.With("service", "ContentLearningService"),
		cfg:      cfg,
		catalog:  catalog,
		jobs:     jobRepo,
		learn:    learn,
		qa:       qa,
		quiz:     quiz,
		notifier: notifier,
	}
}

func (s *contentLearningService) EnqueueAnalysis(ctx context.Context, userID, contentID uuid.UUID, forceRebuild bool) (out *JobStatus, err error) {
	ctx, span := observability.StartSpan(ctx, "content.enqueue_analysis",
		attribute.String("content.id", contentID.String()),
		attribute.Bool("content.force_rebuild", forceRebuild))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.guard(ctx, userID, contentID); err != nil {
		return nil, err
	}
	job, err := s.jobs.CreateOrReuse(dbctx.Context{Ctx: ctx}, userID, contentID, s.cfg.PipelineVersion, forceRebuild)
	if err != nil {
		return nil, fmt.Errorf("enqueue analysis: %w", err)
	}
	if job.Status == jobstate.StatusPending && s.notifier != nil {
		s.notifier.JobQueued(ctx, job)
	}
	s.log.Info("analysis enqueued", "job_id", job.ID, "content_id", contentID, "user_id", userID, "status", job.Status, "force_rebuild", forceRebuild)
	return jobStatusOf(job), nil
}

func (s *contentLearningService) GetJobStatus(ctx context.Context, userID, jobID uuid.UUID) (out *JobStatus, err error) {
	ctx, span := observability.StartSpan(ctx, "content.get_job_status", attribute.String("job.id", jobID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if !s.cfg.Enabled {
		return nil, apierr.Disabled()
	}
	job, err := s.jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apierr.NotFound("job %s not found", jobID)
	}
	if err := s.owns(ctx, userID, job.ContentID); err != nil {
		return nil, err
	}
	return jobStatusOf(job), nil
}

func (s *contentLearningService) GetSummary(ctx context.Context, userID, contentID uuid.UUID, level string) (out *SummaryView, err error) {
	ctx, span := observability.StartSpan(ctx, "content.get_summary",
		attribute.String("content.id", contentID.String()),
		attribute.String("summary.level", level))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.guard(ctx, userID, contentID); err != nil {
		return nil, err
	}
	var kind string
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", SummaryLevelGlobal:
		level, kind = SummaryLevelGlobal, content.ArtifactSummaryGlobal
	case SummaryLevelSection:
		level, kind = SummaryLevelSection, content.ArtifactSummarySection
	default:
		return nil, apierr.InvalidArgument("unknown summary level %q", level)
	}
	art, err := s.learn.LatestArtifact(dbctx.Context{Ctx: ctx}, contentID, kind)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, apierr.NotFound("no %s summary for content %s", level, contentID)
	}
	return &SummaryView{
		ContentID:    contentID,
		Level:        level,
		Payload:      json.RawMessage(art.Payload),
		ModelName:    art.ModelName,
		UsedFallback: art.UsedFallback,
		CreatedAt:    art.CreatedAt,
	}, nil
}

func (s *contentLearningService) Ask(ctx context.Context, userID, contentID uuid.UUID, question string) (out *AskResult, err error) {
	ctx, span := observability.StartSpan(ctx, "content.ask", attribute.String("content.id", contentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.guard(ctx, userID, contentID); err != nil {
		return nil, err
	}
	res, err := s.qa.Answer(ctx, AskInput{ContentID: contentID, UserID: userID, Question: question})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("qa.retrieval", res.RetrievalMode),
		attribute.Bool("qa.used_fallback", res.UsedFallback))
	return res, nil
}

func (s *contentLearningService) CreateQuiz(ctx context.Context, userID, contentID uuid.UUID, difficulty string, questionCount int) (out *types.QuizSet, err error) {
	ctx, span := observability.StartSpan(ctx, "content.create_quiz", attribute.String("content.id", contentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.guard(ctx, userID, contentID); err != nil {
		return nil, err
	}
	return s.quiz.Generate(ctx, GenerateQuizInput{
		ContentID:     contentID,
		UserID:        userID,
		Difficulty:    difficulty,
		QuestionCount: questionCount,
	})
}

func (s *contentLearningService) SubmitQuiz(ctx context.Context, userID, quizSetID uuid.UUID, answers []QuizResponse, idempotencyKey string) (out *AttemptView, err error) {
	ctx, span := observability.StartSpan(ctx, "content.submit_quiz", attribute.String("quiz_set.id", quizSetID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if !s.cfg.Enabled {
		return nil, apierr.Disabled()
	}
	set, err := s.quiz.GetQuizSet(ctx, quizSetID)
	if err != nil {
		return nil, err
	}
	if err := s.owns(ctx, userID, set.ContentID); err != nil {
		return nil, err
	}
	res, err := s.quiz.Submit(ctx, SubmitQuizInput{
		UserID:         userID,
		QuizSetID:      quizSetID,
		Answers:        answers,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}
	view := attemptViewOf(res.Attempt, set)
	view.Created = res.Created
	return view, nil
}

func (s *contentLearningService) GetConcepts(ctx context.Context, userID, contentID uuid.UUID) (out *ConceptGraph, err error) {
	ctx, span := observability.StartSpan(ctx, "content.get_concepts", attribute.String("content.id", contentID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if err := s.guard(ctx, userID, contentID); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	nodes, edges, err := s.learn.ListConcepts(dbc, contentID)
	if err != nil {
		return nil, err
	}
	graph := &ConceptGraph{Nodes: nodes, Edges: edges}
	rows, err := s.learn.ListMastery(dbc, userID, contentID)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		graph.Mastery = make(map[string]float64, len(rows))
		for _, m := range rows {
			graph.Mastery[m.ConceptKey] = m.Score
		}
	}
	return graph, nil
}

func (s *contentLearningService) GetQuizAttempt(ctx context.Context, userID, attemptID uuid.UUID) (out *AttemptView, err error) {
	ctx, span := observability.StartSpan(ctx, "content.get_quiz_attempt", attribute.String("attempt.id", attemptID.String()))
	defer func() { observability.EndSpan(span, err) }()

	if !s.cfg.Enabled {
		return nil, apierr.Disabled()
	}
	report, err := s.quiz.Report(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if report.Attempt.UserID != userID {
		return nil, apierr.NotFound("quiz attempt %s not found", attemptID)
	}
	if err := s.owns(ctx, userID, report.QuizSet.ContentID); err != nil {
		return nil, err
	}
	return attemptViewOf(report.Attempt, report.QuizSet), nil
}

func (s *contentLearningService) guard(ctx context.Context, userID, contentID uuid.UUID) error {
	if !s.cfg.Enabled {
		return apierr.Disabled()
	}
	return s.owns(ctx, userID, contentID)
}

// owns reports not-found both for unknown content and for content outside the user's
// library, so callers cannot probe for ids.
func (s *contentLearningService) owns(ctx context.Context, userID, contentID uuid.UUID) error {
	if userID == uuid.Nil || contentID == uuid.Nil {
		return apierr.NotFound("content %s not found", contentID)
	}
	uc, err := s.catalog.GetUserContent(dbctx.Context{Ctx: ctx}, userID, contentID)
	if err != nil {
		return fmt.Errorf("ownership check: %w", err)
	}
	if uc == nil {
		return apierr.NotFound("content %s not found", contentID)
	}
	return nil
}

func jobStatusOf(job *types.ContentIngestJob) *JobStatus {
	return &JobStatus{
		JobID:        job.ID,
		ContentID:    job.ContentID,
		Status:       job.Status,
		Stage:        job.Stage,
		ProgressPct:  job.ProgressPct(),
		AttemptCount: job.AttemptCount,
		ErrorCode:    job.ErrorCode,
		ErrorDetail:  job.ErrorDetail,
		FallbackUsed: job.FallbackUsed,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
	}
}

func attemptViewOf(a *types.QuizAttempt, set *types.QuizSet) *AttemptView {
	view := &AttemptView{
		AttemptID:    a.ID,
		QuizSetID:    a.QuizSetID,
		ContentID:    set.ContentID,
		Score:        a.Score,
		CorrectCount: a.CorrectCount,
		Total:        a.Total,
		SubmittedAt:  a.CreatedAt,
	}
	answers := make(map[uuid.UUID]*types.QuizAnswer, len(a.Answers))
	for _, ans := range a.Answers {
		answers[ans.QuestionID] = ans
	}
	for _, q := range set.Questions {
		r := AnswerReview{
			QuestionID:    q.ID,
			Position:      q.Position,
			Prompt:        q.Prompt,
			CorrectAnswer: q.Answer,
			Explanation:   q.Explanation,
		}
		if ans, ok := answers[q.ID]; ok {
			r.Response, r.Outcome, r.Score = ans.Response, ans.Outcome, ans.Score
		}
		view.Answers = append(view.Answers, r)
	}
	return view
}
