package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"cloaked/internal/service"
	"cloaked/internal/storage"
	"cloaked/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondServiceError maps pipeline errors onto status codes. Internal
// detail stays in the log; 5xx bodies carry a generic message only.
func respondServiceError(w http.ResponseWriter, lg *zap.SugaredLogger, err error) {
	var (
		upstream *service.UpstreamError
		storErr  *storage.Error
	)
	switch {
	case errors.Is(err, service.ErrUnsupportedType), errors.Is(err, service.ErrBadStrength),
		errors.Is(err, service.ErrTooLarge):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConversionInFlight), errors.Is(err, service.ErrNotReady):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &upstream):
		lg.Errorw("upstream processing failed", "error", err)
		respondError(w, http.StatusBadGateway, "processing failed, try again")
	case errors.As(err, &storErr):
		lg.Errorw("storage failure", "op", storErr.Op, "path", storErr.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "something went wrong")
	default:
		lg.Errorw("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "something went wrong")
	}
}
