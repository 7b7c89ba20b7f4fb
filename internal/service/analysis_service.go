package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/domain"
	"github.com/vbonduro/snackcheck/internal/report"
	"github.com/vbonduro/snackcheck/internal/tempimage"
)

// textExtractor is the subset of ocr.TextExtractor that AnalysisService requires.
type textExtractor interface {
	Extract(ctx context.Context, imagePath string) (string, error)
}

type reportFormatter interface {
	Format(raw string) (string, int)
}

// imageStore is the subset of tempimage.Store that AnalysisService requires.
type imageStore interface {
	Save(ctx context.Context, img domain.UploadedImage) (*tempimage.Handle, error)
}

// runRecorder is the subset of store.RunStore that AnalysisService requires.
type runRecorder interface {
	Start(ctx context.Context, requestID, provider string) (*domain.Run, error)
	Finish(ctx context.Context, requestID, status, errorKind string, extractedLen int, ocr, gen time.Duration) error
}

// Event is one step of a streamed analysis. The last event on the channel
// has Stage StageDone with Analysis set, or StageFailed with Err set.
type Event struct {
	Stage    domain.Stage
	Analysis *domain.Analysis
	Err      error
}

type AnalysisService struct {
	extractor textExtractor
	generator report.Generator
	formatter reportFormatter
	images    imageStore
	runs      runRecorder
	slots     *semaphore.Weighted
	logger    *slog.Logger
}

type Option func(*AnalysisService)

// WithRunLog records every analysis in r.
func WithRunLog(r runRecorder) Option {
	return func(s *AnalysisService) { s.runs = r }
}

// WithMaxConcurrent bounds how many analyses run at once. Values below 1 are
// treated as 1.
func WithMaxConcurrent(n int) Option {
	if n < 1 {
		n = 1
	}
	return func(s *AnalysisService) { s.slots = semaphore.NewWeighted(int64(n)) }
}

func NewAnalysisService(
	extractor textExtractor,
	generator report.Generator,
	formatter reportFormatter,
	images imageStore,
	logger *slog.Logger,
	opts ...Option,
) *AnalysisService {
	s := &AnalysisService{
		extractor: extractor,
		generator: generator,
		formatter: formatter,
		images:    images,
		slots:     semaphore.NewWeighted(1),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Provider names the configured report generator.
func (s *AnalysisService) Provider() string { return s.generator.Name() }

// Analyze runs the whole pipeline for one upload and returns the formatted
// report. Nothing about the upload is kept once it returns.
func (s *AnalysisService) Analyze(ctx context.Context, img domain.UploadedImage, health string) (*domain.Analysis, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}
	return s.run(ctx, img, health, func(domain.Stage) {})
}

// AnalyzeStream runs the pipeline in the background and reports each stage
// as it starts. The channel is buffered for every event so the pipeline
// never blocks on a slow reader; it is closed after the final event.
func (s *AnalysisService) AnalyzeStream(ctx context.Context, img domain.UploadedImage, health string) (<-chan Event, error) {
	if err := checkImage(img); err != nil {
		return nil, err
	}

	out := make(chan Event, 8)
	go func() {
		defer close(out)
		analysis, err := s.run(ctx, img, health, func(stage domain.Stage) {
			out <- Event{Stage: stage}
		})
		if err != nil {
			out <- Event{Stage: domain.StageFailed, Err: err}
			return
		}
		out <- Event{Stage: domain.StageDone, Analysis: analysis}
	}()
	return out, nil
}

func checkImage(img domain.UploadedImage) error {
	if len(img.Data) == 0 {
		return apperr.Decode("service.Analyze", "no image data", nil)
	}
	return nil
}

func (s *AnalysisService) run(ctx context.Context, img domain.UploadedImage, health string, emit func(domain.Stage)) (*domain.Analysis, error) {
	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	logger := s.logger.With("request_id", requestID)

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.slots.Release(1)

	analysis := &domain.Analysis{
		RequestID:     requestID,
		Provider:      s.generator.Name(),
		HealthContext: domain.HealthContext(health),
	}
	logger.Info("analysis started", "provider", analysis.Provider, "bytes", len(img.Data), "ext", img.Ext)
	s.recordStart(ctx, logger, analysis)

	err := s.pipeline(ctx, logger, img, analysis, emit)
	s.recordFinish(ctx, logger, analysis, err)
	if err != nil {
		logger.Error("analysis failed", "kind", apperr.KindOf(err), "error", err)
		return nil, err
	}

	logger.Info("analysis complete",
		"rating", analysis.Rating,
		"ocr_ms", analysis.OCRDuration.Milliseconds(),
		"gen_ms", analysis.GenDuration.Milliseconds(),
	)
	return analysis, nil
}

func (s *AnalysisService) pipeline(ctx context.Context, logger *slog.Logger, img domain.UploadedImage, a *domain.Analysis, emit func(domain.Stage)) error {
	handle, err := s.images.Save(ctx, img)
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			logger.Error("failed to release temp image", "path", handle.Path(), "error", err)
		}
	}()
	logger.Debug("temp image saved", "path", handle.Path())

	emit(domain.StageExtracting)
	start := time.Now()
	text, err := s.extractor.Extract(ctx, handle.Path())
	a.OCRDuration = time.Since(start)
	if err != nil {
		return err
	}
	a.ExtractedText = text
	if text == "" {
		logger.Warn("no text detected in image")
	}
	logger.Info("text extracted", "chars", len(text), "ocr_ms", a.OCRDuration.Milliseconds())

	emit(domain.StageGenerating)
	start = time.Now()
	raw, err := s.generator.Generate(ctx, text, a.HealthContext)
	a.GenDuration = time.Since(start)
	if err != nil {
		return err
	}
	a.RawReport = raw

	emit(domain.StageFormatting)
	a.Report, a.Rating = s.formatter.Format(raw)
	return nil
}

// recordStart and recordFinish write to the run log when one is configured.
// Run log failures are logged and never fail the analysis.
func (s *AnalysisService) recordStart(ctx context.Context, logger *slog.Logger, a *domain.Analysis) {
	if s.runs == nil {
		return
	}
	if _, err := s.runs.Start(ctx, a.RequestID, a.Provider); err != nil {
		logger.Error("failed to record run start", "error", err)
	}
}

func (s *AnalysisService) recordFinish(ctx context.Context, logger *slog.Logger, a *domain.Analysis, runErr error) {
	if s.runs == nil {
		return
	}
	status, kind := domain.RunStatusOK, ""
	if runErr != nil {
		status = domain.RunStatusFailed
		kind = string(apperr.KindOf(runErr))
		if kind == "" {
			kind = "INTERNAL"
		}
	}
	if err := s.runs.Finish(ctx, a.RequestID, status, kind, len(a.ExtractedText), a.OCRDuration, a.GenDuration); err != nil {
		logger.Error("failed to record run finish", "error", err)
	}
}
