package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/deckdoc"
	"github.com/brunobiangulo/deckdoc/docx"
	"github.com/brunobiangulo/deckdoc/export"
)

// maxUploadBytes bounds the multipart body of POST /convert.
const maxUploadBytes = 100 << 20

type handler struct {
	conv deckdoc.Converter
}

func newHandler(c deckdoc.Converter) *handler {
	return &handler{conv: c}
}

// GET /
func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

// POST /convert
// Accepts a multipart upload in field "file" and responds with the finished
// document as an attachment. Form or query field tables=true also builds the
// tables workbook, retrievable from /conversions/{id}/tables.
func (h *handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart upload with field 'file'")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	// Sanitise filename to prevent path traversal in stored names.
	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pptx") {
		writeError(w, http.StatusBadRequest, "only .pptx files are supported")
		return
	}

	var opts []deckdoc.ConvertOption
	if v := r.FormValue("tables"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tables must be a boolean")
			return
		}
		opts = append(opts, deckdoc.WithExportTables(enabled))
	}

	conv, err := h.conv.Convert(ctx, file, name, opts...)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		slog.Error("convert error", "filename", name, "error", err)
		return
	}

	w.Header().Set("X-Conversion-Id", conv.ID)
	w.Header().Set("X-Conversion-Warnings", strconv.Itoa(len(conv.Warnings)))
	writeAttachment(w, conv.Filename, conv.MIMEType, conv.Document)
}

// GET /conversions
func (h *handler) handleListConversions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 0 and 1000")
			return
		}
		limit = n
	}

	records, err := h.conv.List(r.Context(), limit)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		slog.Error("list conversions error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversions": records,
	})
}

// GET /conversions/{id}
func (h *handler) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.conv.Get(r.Context(), id)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GET /conversions/{id}/document
func (h *handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name, data, err := h.conv.Document(r.Context(), id)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeAttachment(w, name, docx.MIMEType, data)
}

// GET /conversions/{id}/tables
func (h *handler) handleTables(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := h.conv.Tables(r.Context(), id)
	if err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		return
	}
	writeAttachment(w, "tables.xlsx", export.MIMEType, data)
}

// DELETE /conversions/{id}
func (h *handler) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.conv.Delete(r.Context(), id); err != nil {
		status, msg := errorStatus(err)
		writeError(w, status, msg)
		if status == http.StatusInternalServerError {
			slog.Error("delete error", "conversion_id", id, "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if stats, err := h.conv.Stats(r.Context()); err == nil {
		resp["stats"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorStatus maps converter errors to an HTTP status and a client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, deckdoc.ErrInvalidInput):
		return http.StatusBadRequest, "file is not a readable PowerPoint presentation"
	case errors.Is(err, deckdoc.ErrNoSlides):
		return http.StatusUnprocessableEntity, "presentation has no slides"
	case errors.Is(err, deckdoc.ErrConversionNotFound):
		return http.StatusNotFound, "conversion not found"
	case errors.Is(err, deckdoc.ErrStoreDisabled):
		return http.StatusNotImplemented, "conversion history is disabled"
	case errors.Is(err, deckdoc.ErrLLMRequestFailed):
		return http.StatusBadGateway, "explanation service rejected the request"
	case errors.Is(err, deckdoc.ErrLLMUnavailable):
		return http.StatusServiceUnavailable, "explanation service unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "conversion timed out"
	default:
		return http.StatusInternalServerError, "conversion failed"
	}
}

func writeAttachment(w http.ResponseWriter, name, mimeType string, data []byte) {
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>PPT to Word Extractor with Detailed Explanations</title>
</head>
<body>
<h1>PPT to Word Extractor with Detailed Explanations</h1>
<form action="/convert" method="post" enctype="multipart/form-data">
<label for="file">Upload a PowerPoint file</label>
<input type="file" id="file" name="file" accept=".pptx" required>
<label><input type="checkbox" name="tables" value="true"> Also export tables</label>
<button type="submit">Convert</button>
</form>
</body>
</html>
`
