package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/config"
	"github.com/vbonduro/snackcheck/internal/db"
	"github.com/vbonduro/snackcheck/internal/logging"
	"github.com/vbonduro/snackcheck/internal/ocr/tesseract"
	"github.com/vbonduro/snackcheck/internal/report"
	claudereport "github.com/vbonduro/snackcheck/internal/report/claude"
	geminireport "github.com/vbonduro/snackcheck/internal/report/gemini"
	ollamareport "github.com/vbonduro/snackcheck/internal/report/ollama"
	"github.com/vbonduro/snackcheck/internal/search"
	"github.com/vbonduro/snackcheck/internal/search/tavily"
	"github.com/vbonduro/snackcheck/internal/service"
	"github.com/vbonduro/snackcheck/internal/store"
	"github.com/vbonduro/snackcheck/internal/tempimage"
	"github.com/vbonduro/snackcheck/internal/web"
	"github.com/vbonduro/snackcheck/internal/web/templates"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		os.Exit(exitCode(os.Stderr, err))
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.Secrets()...)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	images, err := tempimage.NewStore(filepath.Join(cfg.TempDir, "snackcheck"))
	if err != nil {
		logger.Error("failed to initialize temp image store", "error", err)
		return
	}

	svcOpts := []service.Option{service.WithMaxConcurrent(cfg.MaxConcurrent)}
	webOpts := []web.Option{web.WithMaxUploadBytes(cfg.MaxUploadBytes)}

	if cfg.RunLogPath != "" {
		database, err := db.Open(cfg.RunLogPath)
		if err != nil {
			logger.Error("failed to open run log", "path", cfg.RunLogPath, "error", err)
			return
		}
		defer closeDB(database, logger)

		runs := store.NewRunStore(database)
		svcOpts = append(svcOpts, service.WithRunLog(runs))
		webOpts = append(webOpts, web.WithRunLog(runs))
		logger.Info("run log enabled", "path", cfg.RunLogPath)
	}

	generator, err := newGenerator(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize report backend", "provider", cfg.Provider, "error", err)
		return
	}

	analysisService := service.NewAnalysisService(
		tesseract.NewExtractor(logger),
		generator,
		newFormatter(cfg),
		images,
		logger,
		svcOpts...,
	)
	server := web.NewServer(analysisService, templates.FS, logger, webOpts...)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}

// exitCode reports a startup failure on w and returns the process exit
// status: 2 for configuration problems, 1 for anything else.
func exitCode(w io.Writer, err error) int {
	if apperr.IsConfig(err) {
		fmt.Fprintf(w, "invalid configuration: %v\n", err)
		return 2
	}
	fmt.Fprintln(w, err)
	return 1
}

func newGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (report.Generator, error) {
	var searcher search.Searcher
	if cfg.SearchEnabled {
		searcher = tavily.NewClient(cfg.TavilyAPIKey)
	}

	switch cfg.Provider {
	case config.ProviderClaude:
		logger.Info("using Claude report backend", "model", cfg.ClaudeModel, "search", cfg.SearchEnabled)
		return claudereport.NewGenerator(cfg.ClaudeAPIKey, cfg.ClaudeModel, searcher, logger), nil
	case config.ProviderOllama:
		logger.Info("using Ollama report backend", "model", cfg.OllamaModel)
		g, err := ollamareport.NewGenerator(cfg.OllamaHost, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		logger.Info("using Gemini report backend", "model", cfg.GeminiModel, "search", cfg.SearchEnabled)
		g, err := geminireport.NewGenerator(ctx, cfg.GoogleAPIKey, cfg.GeminiModel, searcher, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
}

func newFormatter(cfg *config.Config) *report.Formatter {
	if cfg.RatingMode == config.RatingDerived {
		return report.NewFormatter(report.DerivedRating)
	}
	return report.NewFormatter(report.RandomRating)
}

func closeDB(database *sql.DB, logger *slog.Logger) {
	if err := database.Close(); err != nil {
		logger.Error("failed to close run log", "error", err)
	}
}
