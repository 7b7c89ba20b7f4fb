package web

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/vbonduro/snackcheck/internal/domain"
	"github.com/vbonduro/snackcheck/internal/service"
)

// defaultMaxUploadBytes matches the default MAX_UPLOAD_BYTES.
const defaultMaxUploadBytes = 20 << 20

// analyzer is the subset of service.AnalysisService that the server requires.
type analyzer interface {
	Analyze(ctx context.Context, img domain.UploadedImage, health string) (*domain.Analysis, error)
	AnalyzeStream(ctx context.Context, img domain.UploadedImage, health string) (<-chan service.Event, error)
	Provider() string
}

// runLister is the subset of store.RunStore behind GET /runs.
type runLister interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.Run, error)
}

type Server struct {
	service        analyzer
	runs           runLister
	templates      fs.FS
	mux            *http.ServeMux
	tmplFuncs      template.FuncMap
	markdown       goldmark.Markdown
	maxUploadBytes int64
	logger         *slog.Logger
}

type Option func(*Server)

// WithRunLog enables GET /runs.
func WithRunLog(runs runLister) Option {
	return func(s *Server) { s.runs = runs }
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

func NewServer(svc analyzer, tmpl fs.FS, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		service:        svc,
		templates:      tmpl,
		mux:            http.NewServeMux(),
		markdown:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         logger,
		tmplFuncs: template.FuncMap{
			"mb": func(n int64) int64 { return n >> 20 },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /analyze/stream", s.handleAnalyzeStream)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline'; "+
				"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; "+
				"font-src https://fonts.gstatic.com; "+
				"img-src 'self' data: blob:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// requestLogger tags every request with an id, passed on to the analysis
// pipeline and echoed in X-Request-ID.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(service.WithRequestID(r.Context(), id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr, "provider", s.service.Provider())
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		ReadTimeout: 60 * time.Second,
		// Model calls have no deadline of their own, so the write side is
		// left open for long analyses.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, status int, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return tmpl.ExecuteTemplate(w, "base", data)
}
