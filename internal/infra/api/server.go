package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"storybook-pipeline/internal/config"
	"storybook-pipeline/internal/infra/api/apiv1"
)

// NewRouter assembles the public API: v1 routes under the shared middleware
// chain plus a bare health probe.
func NewRouter(cfg *config.APIConfig, logger *zerolog.Logger, v1 *apiv1.Server) http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return Chain(next,
			TraceID(logger),
			RequestLog(logger),
			Recover(logger),
			Timeout(cfg.RequestTimeout),
		)
	})

	apiv1.RegisterAPIV1(r, v1)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}
