package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cloaked/internal/auth"
	"cloaked/internal/models"
	"cloaked/internal/service"
	"cloaked/internal/store"
)

// Upload accepts a multipart image and creates a pending job. Conversion is
// a separate request so a trigger failure can never leave the row stuck.
func Upload(coord *service.Coordinator, lg *zap.SugaredLogger, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Leave slack over the payload ceiling for the multipart framing;
		// the coordinator enforces the exact byte limit.
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(w, http.StatusBadRequest, "file too large")
				return
			}
			respondError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondError(w, http.StatusBadRequest, "unreadable file")
			return
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}

		p, err := coord.Upload(r.Context(), auth.UserID(r.Context()), contentType, r.FormValue("strength"), data)
		if err != nil {
			respondServiceError(w, lg, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"id":           p.ID,
			"original_url": p.OriginalURL,
			"status":       p.Status,
		})
	}
}

// statusView is the lifecycle slice of a row that pollers read. Owner,
// strength and proof bookkeeping stay off the wire here; proofs have their
// own endpoint.
func statusView(p *models.ImagePair) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"status":        p.Status,
		"original_url":  p.OriginalURL,
		"protected_url": p.ProtectedURL,
		"created_at":    p.CreatedAt,
		"updated_at":    p.UpdatedAt,
	}
}

func Convert(coord *service.Coordinator, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := coord.Convert(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondServiceError(w, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, statusView(p))
	}
}

func GetImage(st *store.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := st.Get(r.Context(), chi.URLParam(r, "id"), auth.UserID(r.Context()))
		if err != nil {
			respondServiceError(w, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, statusView(p))
	}
}

func ListImages(st *store.Store, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				limit = n
			}
		}
		rows, next, err := st.List(r.Context(), auth.UserID(r.Context()), r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"items": rows, "next_cursor": next})
	}
}

func DeleteImage(coord *service.Coordinator, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := coord.Delete(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id")); err != nil {
			respondServiceError(w, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
	}
}
