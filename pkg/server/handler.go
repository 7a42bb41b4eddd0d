package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"medidenoise/pkg/service"
)

const healthTimeout = 5 * time.Second

// DenoiseRequest is the JSON body of POST /denoise
type DenoiseRequest struct {
	Image     string `json:"image"`
	SessionID string `json:"session_id,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// UploadHandler handles POST /upload
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, "No file part", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, "No file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read file", http.StatusInternalServerError)
		return
	}

	filename := header.Filename
	if filename != "" {
		filename = filepath.Base(filename)
	}

	res, err := s.svc.Upload(r.Context(), sessionFromCookie(r), filename, data)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    res.SessionID,
		Path:     "/",
		MaxAge:   int(s.cfg.Session.TTL / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, res, http.StatusOK)
}

// DenoiseHandler handles POST /denoise
func (s *Server) DenoiseHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())

	var req DenoiseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = sessionFromCookie(r)
	}

	res, err := s.svc.Denoise(r.Context(), sessionID, req.Image)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}
	respondJSON(w, res, http.StatusOK)
}

// HealthHandler reports service liveness and model availability
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Model: "ok"}
	if err := s.svc.CheckHealth(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Model backend not available")
		resp.Model = "degraded"
	}
	respondJSON(w, resp, http.StatusOK)
}

func sessionFromCookie(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// respondServiceError maps service errors onto status codes and user messages
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoFilename):
		respondError(w, "No selected file", http.StatusBadRequest)
	case errors.Is(err, service.ErrNoFile):
		respondError(w, "No file part", http.StatusBadRequest)
	case errors.Is(err, service.ErrNoImage):
		respondError(w, "No image data provided", http.StatusBadRequest)
	case errors.Is(err, service.ErrOriginalNotFound):
		respondError(w, "Original image not found", http.StatusBadRequest)
	case errors.Is(err, service.ErrDecode):
		respondError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInference):
		s.logger.Error().Err(err).Msg("Inference failed")
		respondError(w, "Denoising failed", http.StatusInternalServerError)
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		respondError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
