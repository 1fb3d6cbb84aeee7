package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all routes configured.
func (s *Server) NewRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
			ExposedHeaders:   []string{requestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/", s.Index)
	r.Get("/healthz", s.Health)

	r.Post("/signup", s.Signup)
	r.Post("/signin", s.Signin)
	r.Post("/signout", s.Signout)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated)

		r.Get("/me", s.Me)
		r.Post("/me/password", s.ChangePassword)
		r.Delete("/me", s.DeleteAccount)
	})

	return r
}
