package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cloaked/internal/auth"
	"cloaked/internal/service"
)

// Proof returns the cached comparison when warm, generating and persisting
// it otherwise.
func Proof(proofs *service.ProofService, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := proofs.Proof(r.Context(), auth.UserID(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondServiceError(w, lg, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
