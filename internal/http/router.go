package http

import (
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"

	httpH "github.com/Ladvien/self-sensored-sub003/internal/http/handlers"
	httpMW "github.com/Ladvien/self-sensored-sub003/internal/http/middleware"
	"github.com/Ladvien/self-sensored-sub003/internal/http/response"
	"github.com/Ladvien/self-sensored-sub003/internal/platform/logger"
)

type RouterConfig struct {
	Log           *logger.Logger
	HealthHandler *httpH.HealthHandler
	// Metrics serves the prometheus exposition format.
	Metrics nethttp.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Healthz)
		r.GET("/readyz", cfg.HealthHandler.Readyz)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	r.NoRoute(func(c *gin.Context) {
		response.RespondError(c, nethttp.StatusNotFound, "not_found", errors.New("route not found"))
	})
	return r
}
