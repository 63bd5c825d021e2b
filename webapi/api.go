package webapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hostsync/config"
	"hostsync/logger"
	"hostsync/refresh"
	"hostsync/source"
)

// APIResponse 统一的 API 响应格式
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RefreshController is the part of refresh.Manager the API drives.
type RefreshController interface {
	Running() bool
	Pending() []string
	LastReport() *refresh.Report
	Cancel()
}

// Triggerer queues a refresh cycle. refresh.Scheduler implements it.
type Triggerer interface {
	Trigger() bool
}

// MirrorInspector reports mirror modification times. fetcher.Fetcher implements it.
type MirrorInspector interface {
	ModTime(item source.Item) time.Time
}

// StatsProvider 统计数据来源
type StatsProvider interface {
	GetStats() map[string]interface{}
	Reset()
}

// Deps 服务器依赖
type Deps struct {
	Config    *config.Config
	Refresh   RefreshController
	Scheduler Triggerer
	Mirrors   MirrorInspector
	Stats     StatsProvider
	// Metrics 为 nil 时不暴露 /metrics
	Metrics http.Handler
}

// Server Web API 服务器
type Server struct {
	deps     Deps
	listener *http.Server
	log      *logger.Logger
}

// NewServer 创建新的 Web API 服务器
func NewServer(deps Deps) *Server {
	return &Server{
		deps: deps,
		log:  logger.With("webapi"),
	}
}

// Handler 返回完整的路由
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/refresh/cancel", s.handleCancel)
		r.Get("/sources", s.handleSources)
		r.Get("/stats", s.handleStats)
		r.Post("/stats/clear", s.handleClearStats)
		r.Get("/config", s.handleGetConfig)
	})

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics)
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSONError(w, "Not found", http.StatusNotFound)
	})
	return r
}

// Start 启动 Web API 服务，阻塞直到 Shutdown
func (s *Server) Start() error {
	cfg := s.deps.Config.WebAPI
	if !cfg.Enabled {
		s.log.Infof("WebAPI is disabled")
		return nil
	}

	s.listener = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("Web API server started on http://%s", cfg.ListenAddr)
	if err := s.listener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止 Web API 服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Shutdown(ctx)
}
