package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-engine/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	statsHandler := handlers.NewStatsHandler(s.deps.Store, s.deps.Gallery, s.deps.Encoder, s.deps.Identifier.Threshold())
	facesHandler := handlers.NewFacesHandler(s.deps.Encoder, s.deps.Gallery, s.deps.Identifier, s.deps.Store, statsHandler)
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Store, s.deps.Store)
	livenessHandler := handlers.NewLivenessHandler(s.deps.Encoder, s.deps.Identifier, s.deps.Store)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Encoding and matching
		r.Post("/encode", facesHandler.Encode)
		r.Post("/compare", facesHandler.Compare)
		r.Post("/enroll", facesHandler.Enroll)
		r.Post("/verify", facesHandler.Verify)
		r.Post("/identify/candidates", facesHandler.Candidates)

		// Two-frame liveness
		r.Get("/live/challenge", livenessHandler.Challenge)
		r.Post("/live/verify", livenessHandler.Verify)

		// Administration
		r.Get("/identities", identitiesHandler.List)
		r.Get("/identities/{label}", identitiesHandler.Get)
		r.Get("/verifications", identitiesHandler.Verifications)
		r.Get("/stats", statsHandler.Get)
	})
}
