package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/neurobridge-content/internal/domain"
	"github.com/yungbote/neurobridge-content/internal/http/response"
	"github.com/yungbote/neurobridge-content/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-content/internal/services"
)

type ContentHandler struct {
	svc services.ContentLearningService
}

func NewContentHandler(svc services.ContentLearningService) *ContentHandler {
	return &ContentHandler{svc: svc}
}

type enqueueRequest struct {
	ForceRebuild bool `json:"force_rebuild"`
}

type askRequest struct {
	Question string `json:"question"`
}

type createQuizRequest struct {
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
}

type submitQuizRequest struct {
	Answers        []services.QuizResponse `json:"answers"`
	IdempotencyKey string                  `json:"idempotency_key"`
}

// POST /api/content/:id/analysis
func (h *ContentHandler) EnqueueAnalysis(c *gin.Context) {
	userID, contentID, ok := h.userAndID(c, "id", "invalid_content_id")
	if !ok {
		return
	}
	var req enqueueRequest
	if !bindOptional(c, &req) {
		return
	}
	job, err := h.svc.EnqueueAnalysis(c.Request.Context(), userID, contentID, req.ForceRebuild)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondAccepted(c, gin.H{"job": job})
}

// GET /api/content/jobs/:job_id
func (h *ContentHandler) GetJobStatus(c *gin.Context) {
	userID, jobID, ok := h.userAndID(c, "job_id", "invalid_job_id")
	if !ok {
		return
	}
	job, err := h.svc.GetJobStatus(c.Request.Context(), userID, jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/content/:id/summary?level=global|section
func (h *ContentHandler) GetSummary(c *gin.Context) {
	userID, contentID, ok := h.userAndID(c, "id", "invalid_content_id")
	if !ok {
		return
	}
	level := c.DefaultQuery("level", services.SummaryLevelGlobal)
	summary, err := h.svc.GetSummary(c.Request.Context(), userID, contentID, level)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}

// POST /api/content/:id/ask
func (h *ContentHandler) Ask(c *gin.Context) {
	userID, contentID, ok := h.userAndID(c, "id", "invalid_content_id")
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	res, err := h.svc.Ask(c.Request.Context(), userID, contentID, req.Question)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"answer": res})
}

// GET /api/content/:id/concepts
func (h *ContentHandler) GetConcepts(c *gin.Context) {
	userID, contentID, ok := h.userAndID(c, "id", "invalid_content_id")
	if !ok {
		return
	}
	graph, err := h.svc.GetConcepts(c.Request.Context(), userID, contentID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"concepts": graph})
}

// POST /api/content/:id/quizzes
func (h *ContentHandler) CreateQuiz(c *gin.Context) {
	userID, contentID, ok := h.userAndID(c, "id", "invalid_content_id")
	if !ok {
		return
	}
	var req createQuizRequest
	if !bindOptional(c, &req) {
		return
	}
	set, err := h.svc.CreateQuiz(c.Request.Context(), userID, contentID, req.Difficulty, req.QuestionCount)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"quiz": withoutExplanations(set)})
}

// POST /api/content/quizzes/:quiz_id/attempts
func (h *ContentHandler) SubmitQuiz(c *gin.Context) {
	userID, quizID, ok := h.userAndID(c, "quiz_id", "invalid_quiz_id")
	if !ok {
		return
	}
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	attempt, err := h.svc.SubmitQuiz(c.Request.Context(), userID, quizID, req.Answers, key)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	status := http.StatusOK
	if attempt.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"attempt": attempt})
}

// GET /api/content/attempts/:attempt_id
func (h *ContentHandler) GetQuizAttempt(c *gin.Context) {
	userID, attemptID, ok := h.userAndID(c, "attempt_id", "invalid_attempt_id")
	if !ok {
		return
	}
	attempt, err := h.svc.GetQuizAttempt(c.Request.Context(), userID, attemptID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"attempt": attempt})
}

func (h *ContentHandler) userAndID(c *gin.Context, param, code string) (uuid.UUID, uuid.UUID, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing user"))
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, code, err)
		return uuid.Nil, uuid.Nil, false
	}
	return rd.UserID, id, true
}

// bindOptional accepts an empty body.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	return true
}

// withoutExplanations hides explanations, which quote the answer, until an attempt exists.
func withoutExplanations(set *types.QuizSet) *types.QuizSet {
	if set == nil {
		return nil
	}
	out := *set
	out.Questions = make([]*types.QuizQuestion, len(set.Questions))
	for i, q := range set.Questions {
		cp := *q
		cp.Explanation = ""
		out.Questions[i] = &cp
	}
	return &out
}
