// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"docqa/internal/models"
)

const (
	outcomeOK         = "ok"
	outcomeDegraded   = "degraded"
	outcomeBadRequest = "bad_request"
)

// Assistant is the query side of rag.Assistant.
type Assistant interface {
	Respond(ctx context.Context, question, language string) *models.PromptResponse
	Ready() bool
}

type Server struct {
	assistant Assistant
	router    *gin.Engine
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  prometheus.Histogram
}

func New(a Assistant) *Server {
	s := &Server{
		assistant: a,
		registry:  prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_ask_requests_total",
			Help: "Questions received, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_ask_duration_seconds",
			Help:    "Time spent answering a question.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	s.registry.MustRegister(s.requests, s.duration)
	s.buildRouter()
	return s
}

func (s *Server) buildRouter() {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())

	router.GET("/healthz", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	v1 := router.Group("/v1")
	v1.POST("/ask", s.ask)
	s.router = router
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Debug().Msg("Received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Info().Msg("Server shutdown completed")
	return nil
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
	Language string `json:"language"`
}

type askResponse struct {
	Answer   string          `json:"answer"`
	Language models.Language `json:"language"`
	Sources  []string        `json:"sources"`
	Degraded bool            `json:"degraded"`
}

func (s *Server) ask(c *gin.Context) {
	start := time.Now()
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.requests.WithLabelValues(outcomeBadRequest).Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp := s.assistant.Respond(c.Request.Context(), req.Question, req.Language)
	s.duration.Observe(time.Since(start).Seconds())
	outcome := outcomeOK
	if resp.Degraded {
		outcome = outcomeDegraded
	}
	s.requests.WithLabelValues(outcome).Inc()

	sources := resp.Sources
	if sources == nil {
		sources = []string{}
	}
	c.JSON(http.StatusOK, askResponse{
		Answer:   resp.Content,
		Language: resp.Language,
		Sources:  sources,
		Degraded: resp.Degraded,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "index_ready": s.assistant.Ready()})
}
