package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/domain"
)

// multipartOverhead is the form allowance on top of the image itself.
const multipartOverhead = 1 << 20

const msgNoImage = "Please upload an image to analyze."

// allowedImageTypes is the set of sniffed MIME types accepted for uploads.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

var allowedExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// uploadError is a request the pipeline never saw.
type uploadError struct {
	status  int
	message string
}

func (e *uploadError) Error() string { return e.message }

// readUpload validates the multipart form and returns the image and the
// health text.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (domain.UploadedImage, string, *uploadError) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return domain.UploadedImage{}, "", s.tooLarge()
		}
		return domain.UploadedImage{}, "", &uploadError{http.StatusBadRequest, "failed to parse form"}
	}
	health := r.FormValue("health")

	file, header, err := r.FormFile("image")
	if err != nil {
		return domain.UploadedImage{}, health, &uploadError{http.StatusBadRequest, msgNoImage}
	}
	defer closeWithLog(file, "upload file", s.logger)

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !allowedExts[ext] {
		return domain.UploadedImage{}, health, &uploadError{http.StatusBadRequest, "Only JPG, JPEG and PNG images are supported."}
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.logger.Error("read upload failed", "error", err)
		return domain.UploadedImage{}, health, &uploadError{http.StatusInternalServerError, "failed to read file"}
	}
	if int64(len(data)) > s.maxUploadBytes {
		return domain.UploadedImage{}, health, s.tooLarge()
	}
	if len(data) == 0 {
		return domain.UploadedImage{}, health, &uploadError{http.StatusBadRequest, msgNoImage}
	}

	mimeType, ok := allowedImageMIME(data)
	if !ok {
		return domain.UploadedImage{}, health, &uploadError{http.StatusBadRequest, "Only JPG, JPEG and PNG images are supported."}
	}

	return domain.UploadedImage{Data: data, Ext: ext, MIMEType: mimeType}, health, nil
}

func (s *Server) tooLarge() *uploadError {
	return &uploadError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Image is too large. The limit is %d MB.", s.maxUploadBytes>>20),
	}
}

// errorResponse maps a pipeline error to a status and a short message. The
// details stay in the log.
func errorResponse(err error) (int, string) {
	switch {
	case apperr.IsDecode(err):
		return http.StatusUnprocessableEntity, "We couldn't read that image. Try a sharper photo of the ingredient list."
	case apperr.IsGeneration(err):
		return http.StatusBadGateway, "The analysis service failed. Please try again."
	default:
		return http.StatusInternalServerError, "Something went wrong while analyzing the image."
	}
}

// handleAnalyze runs the pipeline and responds with the index page showing
// the report or the error. It serves browsers without JavaScript.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	img, health, uerr := s.readUpload(w, r)
	if uerr != nil {
		s.renderResult(w, uerr.status, health, nil, uerr.message)
		return
	}

	// The pipeline runs to completion even if the client goes away.
	analysis, err := s.service.Analyze(context.WithoutCancel(r.Context()), img, health)
	if err != nil {
		status, msg := errorResponse(err)
		s.renderResult(w, status, health, nil, msg)
		return
	}

	view, err := s.toView(analysis)
	if err != nil {
		s.logger.Error("render markdown failed", "error", err)
		s.renderResult(w, http.StatusInternalServerError, health, nil, "Something went wrong while rendering the report.")
		return
	}
	s.renderResult(w, http.StatusOK, health, view, "")
}

func (s *Server) renderResult(w http.ResponseWriter, status int, health string, view *reportView, msg string) {
	if err := s.renderPage(w, status, s.indexData(health, view, msg), indexFiles...); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

type sseStage struct {
	Stage string `json:"stage"`
	Label string `json:"label"`
}

type sseError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// handleAnalyzeStream accepts the same form as handleAnalyze and responds
// with an SSE stream: one "stage" event per pipeline stage, then a single
// "report" or "error" event.
func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	img, health, uerr := s.readUpload(w, r)
	if uerr != nil {
		http.Error(w, uerr.message, uerr.status)
		return
	}

	events, err := s.service.AnalyzeStream(context.WithoutCancel(r.Context()), img, health)
	if err != nil {
		status, msg := errorResponse(err)
		http.Error(w, msg, status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	send := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	for ev := range events {
		if r.Context().Err() != nil {
			// The client left; the pipeline still finishes on its own.
			return
		}
		var err error
		switch ev.Stage {
		case domain.StageDone:
			var view *reportView
			view, err = s.toView(ev.Analysis)
			if err != nil {
				s.logger.Error("render markdown failed", "error", err)
				err = send("error", sseError{http.StatusInternalServerError, "Something went wrong while rendering the report."})
				break
			}
			err = send("report", view)
		case domain.StageFailed:
			status, msg := errorResponse(ev.Err)
			err = send("error", sseError{status, msg})
		default:
			err = send("stage", sseStage{Stage: string(ev.Stage), Label: ev.Stage.Label()})
		}
		if err != nil {
			s.logger.Error("write sse event failed", "stage", ev.Stage, "error", err)
			return
		}
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
