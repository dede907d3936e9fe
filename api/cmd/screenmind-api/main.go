package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"screenmind/api/internal/config"
	"screenmind/api/internal/container"
	"screenmind/api/internal/handle"
	"screenmind/api/internal/httpserver"
	"screenmind/api/internal/logger"
	"screenmind/api/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("init")
	}
	defer c.Close()

	var settings handle.SettingsStore
	if c.Settings != nil {
		settings = c.Settings
	}
	h := handle.New(c.Service, c.Analyzer, settings, handle.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
	})

	router := h.Router()
	if c.DB != nil {
		router.GET("/healthz", gin.WrapF(httpserver.Healthz(c.DB)))
	} else {
		router.GET("/healthz", gin.WrapF(httpserver.Healthz(nil)))
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
		// analysis can take up to RequestTimeout; leave room to write the reply
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
	}
	if err := httpserver.Run(ctx, srv); err != nil {
		logger.WithError(err).Error("server exited")
		return
	}
	logger.Info("server exited")
}
