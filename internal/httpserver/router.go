package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"cloaked/internal/auth"
	"cloaked/internal/cloak"
	"cloaked/internal/httpserver/handlers"
	"cloaked/internal/service"
	"cloaked/internal/store"
)

type Deps struct {
	Store       *store.Store
	Coordinator *service.Coordinator
	Proofs      *service.ProofService
	Engine      *cloak.Client
	Logger      *zap.SugaredLogger

	JWTSecret      []byte
	MaxUploadBytes int64
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", handlers.Health(d.Engine))

	r.Group(func(protected chi.Router) {
		protected.Use(auth.Middleware(d.JWTSecret))
		protected.Post("/v1/images", handlers.Upload(d.Coordinator, d.Logger, d.MaxUploadBytes))
		protected.Get("/v1/images", handlers.ListImages(d.Store, d.Logger))
		protected.Get("/v1/images/{id}", handlers.GetImage(d.Store, d.Logger))
		protected.Post("/v1/images/{id}/convert", handlers.Convert(d.Coordinator, d.Logger))
		protected.Post("/v1/images/{id}/proof", handlers.Proof(d.Proofs, d.Logger))
		protected.Delete("/v1/images/{id}", handlers.DeleteImage(d.Coordinator, d.Logger))
	})
	return r
}
