package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatherly/server/internal/auth"
	"github.com/gatherly/server/internal/http/handlers"
	"github.com/gatherly/server/internal/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	authHandler *handlers.AuthHandler,
	friendsHandler *handlers.FriendsHandler,
	eventsHandler *handlers.EventsHandler,
	tokens *auth.Service,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", handlers.NewHealthHandler().ServeHTTP)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/request_otp", authHandler.HandleRequestOTP)
		r.Post("/verify_otp", authHandler.HandleVerifyOTP)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
	})

	// Protected routes: valid access token required.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Route("/friends", func(r chi.Router) {
			r.Get("/", friendsHandler.HandleList)
			r.Get("/mutual", friendsHandler.HandleMutual)
			r.Get("/requests", friendsHandler.HandlePending)
			r.Post("/requests", friendsHandler.HandleRequest)
			r.Post("/requests/respond", friendsHandler.HandleRespond)
			r.Delete("/{identityRef}", friendsHandler.HandleUnfriend)
		})

		r.Get("/interests", eventsHandler.HandleMyInterests)
		r.Route("/events/{eventRef}", func(r chi.Router) {
			r.Post("/interest", eventsHandler.HandleExpressInterest)
			r.Get("/match", eventsHandler.HandleMatch)
		})
	})

	return r
}
