// Package api exposes evaluation admission and status over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/spigell/cv-evaluator/internal/evaluation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Admitter interface {
	Admit(ctx context.Context, req evaluation.Request) (evaluation.Admission, error)
}

type StatusReader interface {
	Get(ctx context.Context, id string) (evaluation.View, error)
}

type Uploader interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// Config wires the collaborators behind the routes.
type Config struct {
	AppName string
	Version string

	Admitter Admitter
	Status   StatusReader
	Uploads  Uploader
	// Health reports whether dependencies are reachable; nil means always healthy.
	Health func(ctx context.Context) error
	// Metrics is served on /metrics when set.
	Metrics http.Handler

	MaxUploadBytes int64
	Logger         *zap.Logger
}

type handlers struct {
	cfg    Config
	logger *zap.Logger
}

// NewRouter builds the gin engine with request ids, access logs and panic recovery.
func NewRouter(cfg Config) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}

	h := &handlers{cfg: cfg, logger: cfg.Logger}

	router := gin.New()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.Use(RequestID(), AccessLog(cfg.Logger), gin.Recovery())

	router.POST("/upload", h.upload)
	router.POST("/evaluate", h.evaluate)
	router.GET("/result/:id", h.result)
	router.GET("/health", h.health)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	return router
}

// Serve runs srv until ctx ends, then shuts it down within grace.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
