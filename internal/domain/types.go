package domain

import (
	"strings"
	"time"
)

// DefaultHealthContext is used when the user does not describe a health condition.
const DefaultHealthContext = "general product analysis"

// UploadedImage is the raw upload as received from the user. Ext is one of
// jpg, jpeg or png.
type UploadedImage struct {
	Data     []byte
	Ext      string
	MIMEType string
}

// HealthContext returns the trimmed health condition, or DefaultHealthContext
// when it is blank.
func HealthContext(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultHealthContext
	}
	return s
}

// Analysis is the result of one pipeline run. Nothing in it outlives the request.
type Analysis struct {
	RequestID     string
	Provider      string
	HealthContext string
	ExtractedText string
	RawReport     string
	Rating        int
	Report        string
	OCRDuration   time.Duration
	GenDuration   time.Duration
}

type Stage string

const (
	StageExtracting Stage = "extracting"
	StageGenerating Stage = "generating"
	StageFormatting Stage = "formatting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Label is the user-facing description of a stage.
func (s Stage) Label() string {
	switch s {
	case StageExtracting:
		return "Reading the ingredient list"
	case StageGenerating:
		return "Writing the health analysis"
	case StageFormatting:
		return "Polishing the report"
	case StageDone:
		return "Analysis ready"
	case StageFailed:
		return "Analysis failed"
	default:
		return string(s)
	}
}

// Run is the operational record of one analysis kept by the optional run log.
// It holds metadata only: no image, text, report or rating.
type Run struct {
	ID           int64
	RequestID    string
	Provider     string
	Status       string
	ErrorKind    string
	ExtractedLen int
	OCRMillis    int64
	GenMillis    int64
	StartedAt    time.Time
	FinishedAt   *time.Time
}

const (
	RunStatusRunning = "running"
	RunStatusOK      = "ok"
	RunStatusFailed  = "failed"
)
