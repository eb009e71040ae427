// Package api exposes the jassist operations over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"jassist-go/internal/app"
	"jassist-go/internal/config"
	"jassist-go/internal/database/sqlc"
	"jassist-go/internal/jassist"
	"jassist-go/internal/metrics"
)

// Backend is the set of operations the API serves. *app.App satisfies it.
type Backend interface {
	RunDownloads(ctx context.Context, userID string, force bool) (*jassist.DownloadRunResult, error)
	DownloadFile(ctx context.Context, userID, fileID string) (*jassist.FileDownloadResult, error)
	DownloadStatus(recordID string) (*jassist.DownloadStatus, error)
	SubmitTranscription(ctx context.Context, userID, path string) (*sqlc.TranscriptionJob, error)
	TranscriptionJob(id int64) (*sqlc.TranscriptionJob, error)
	RetryTranscription(ctx context.Context, id int64) (*sqlc.TranscriptionJob, error)
	TranscriptionResult(id int64) (*app.TranscriptResult, error)
	ClassifyJob(ctx context.Context, id int64) (*sqlc.TranscriptionJob, bool, error)
	ClassifyBatch(ctx context.Context, opts jassist.BatchOptions) (*jassist.BatchResult, error)
	ClassificationBatch(id string) (*sqlc.ClassificationBatch, error)
	Usage(userID string, r metrics.DateRange) (*metrics.UsageReport, error)
}

var _ Backend = (*app.App)(nil)

const shutdownTimeout = 10 * time.Second

// Server is the gin HTTP front end.
type Server struct {
	cfg     config.ServerConfig
	backend Backend
	logger  jassist.Logger
	router  *gin.Engine
}

// NewServer builds the router for backend.
func NewServer(cfg config.ServerConfig, backend Backend, logger jassist.Logger) *Server {
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	if len(cfg.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{cfg: cfg, backend: backend, logger: logger, router: router}
	s.routes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/health", handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		downloads := v1.Group("/downloads")
		downloads.POST("/:user/run", s.runDownloads)
		downloads.POST("/:user/files/:fileID", s.downloadFile)
		downloads.GET("/records/:id", s.downloadStatus)

		transcriptions := v1.Group("/transcriptions")
		transcriptions.POST("", s.submitTranscription)
		transcriptions.GET("/:id", s.transcriptionJob)
		transcriptions.POST("/:id/retry", s.retryTranscription)
		transcriptions.GET("/:id/result", s.transcriptionResult)

		classifications := v1.Group("/classifications")
		classifications.POST("/jobs/:id", s.classifyJob)
		classifications.POST("/batches", s.classifyBatch)
		classifications.GET("/batches/:id", s.classificationBatch)

		v1.GET("/metrics/:user/usage", s.usage)
	}
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting api server", "addr", s.cfg.Addr, "mode", gin.Mode())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api server stopped")
	return nil
}

func requestLogger(logger jassist.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "jassist-api",
	})
}
