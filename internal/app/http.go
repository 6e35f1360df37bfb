package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-content/internal/http"
	httpH "github.com/yungbote/neurobridge-content/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-content/internal/http/middleware"
	"github.com/yungbote/neurobridge-content/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health  *httpH.HealthHandler
	Content *httpH.ContentHandler
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(),
		Content: httpH.NewContentHandler(services.Content),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:            log,
		ServiceName:    cfg.ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		AuthMiddleware: middleware.Auth,
		ContentHandler: handlers.Content,
		HealthHandler:  handlers.Health,
	})
}
