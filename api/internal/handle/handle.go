package handle

import (
	"context"
	"net/http"
	"time"

	"screenmind/api/internal/analysis"
	"screenmind/api/internal/question"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	AppName    = "ScreenMind"
	AppVersion = "1.0.0"
)

// SettingsStore persists configuration changes. Optional.
type SettingsStore interface {
	SaveSelection(ctx context.Context, provider, model string) error
	SaveCredential(ctx context.Context, provider, apiKey string) error
	DeleteCredential(ctx context.Context, provider string) error
}

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	RateLimitRPS   float64
}

type Handle struct {
	svc      *analysis.Service
	analyzer *question.Analyzer
	settings SettingsStore
	opts     Options
	started  time.Time
}

// New wires the HTTP API. settings may be nil.
func New(svc *analysis.Service, analyzer *question.Analyzer, settings SettingsStore, opts Options) *Handle {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 * 1024 * 1024
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	return &Handle{
		svc:      svc,
		analyzer: analyzer,
		settings: settings,
		opts:     opts,
		started:  time.Now(),
	}
}

func (h *Handle) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		requestID(),
		requestLogger(),
		rateLimiter(h.opts.RateLimitRPS),
		// multipart framing needs some room on top of the image itself
		requestSizeLimiter(h.opts.MaxUploadBytes+1<<20),
	)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health)
	v1.GET("/status", h.Status)
	v1.POST("/analyze", h.Analyze)
	v1.GET("/models", h.Models)

	cfg := v1.Group("/config")
	cfg.GET("/models", h.ConfigModels)
	cfg.POST("/api-key", h.SetAPIKey)
	cfg.DELETE("/api-key/:provider", h.RemoveAPIKey)
	cfg.POST("/model", h.SetModel)
	cfg.GET("/settings", h.Settings)
	cfg.POST("/test", h.TestConnection)

	return r
}

func writeJSON(c *gin.Context, code int, v any) {
	c.JSON(code, v)
}

func respondError(c *gin.Context, code int, msg string, kind string) {
	body := gin.H{"success": false, "error": msg}
	if kind != "" {
		body["error_kind"] = kind
	}
	c.AbortWithStatusJSON(code, body)
}

func badRequest(c *gin.Context, msg string) {
	respondError(c, http.StatusBadRequest, msg, "")
}
