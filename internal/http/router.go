package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-content/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-content/internal/http/middleware"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware
	ContentHandler *httpH.ContentHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	content := r.Group("/api/content")
	if cfg.AuthMiddleware != nil {
		content.Use(cfg.AuthMiddleware.RequireAuth())
	}
	if h := cfg.ContentHandler; h != nil {
		// Static segments first so they never parse as a content id.
		content.GET("/jobs/:job_id", h.GetJobStatus)
		content.POST("/quizzes/:quiz_id/attempts", h.SubmitQuiz)
		content.GET("/attempts/:attempt_id", h.GetQuizAttempt)

		content.POST("/:id/analysis", h.EnqueueAnalysis)
		content.GET("/:id/summary", h.GetSummary)
		content.POST("/:id/ask", h.Ask)
		content.GET("/:id/concepts", h.GetConcepts)
		content.POST("/:id/quizzes", h.CreateQuiz)
	}

	return r
}
