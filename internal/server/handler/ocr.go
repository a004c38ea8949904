package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alanyoungcy/surebet/internal/service"
)

// SlipProcessor turns an uploaded slip image into an unverified submission.
type SlipProcessor interface {
	Process(ctx context.Context, image []byte, contentType string) (service.SlipResult, error)
	OpenSlip(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// OCRHandler serves the slip upload endpoint.
type OCRHandler struct {
	slips    SlipProcessor
	maxBytes int64
	logger   *slog.Logger
}

// NewOCRHandler creates an OCRHandler accepting images up to maxBytes.
func NewOCRHandler(slips SlipProcessor, maxBytes int64, logger *slog.Logger) *OCRHandler {
	return &OCRHandler{slips: slips, maxBytes: maxBytes, logger: logHandler(logger, "ocr")}
}

// Process reads the multipart "image" field and runs extraction on it.
// POST /api/ocr/process
func (h *OCRHandler) Process(w http.ResponseWriter, r *http.Request) {
	// Allow some headroom for the multipart framing around the file.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+64<<10)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "image too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with an image field")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		writeError(w, http.StatusBadRequest, "Only image files are allowed")
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}
	if sniffed := http.DetectContentType(image); !strings.HasPrefix(sniffed, "image/") {
		h.logger.WarnContext(r.Context(), "upload content does not look like an image",
			slog.String("declared", contentType),
			slog.String("sniffed", sniffed),
		)
	}

	res, err := h.slips.Process(r.Context(), image, contentType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Slip streams an archived slip image by its object key.
// GET /api/slips/*
func (h *OCRHandler) Slip(w http.ResponseWriter, r *http.Request) {
	key := "slips/" + chi.URLParam(r, "*")
	rc, contentType, err := h.slips.OpenSlip(r.Context(), key)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "slip stream interrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
