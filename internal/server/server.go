// Package server wires the HTTP API: auth, event management, contributor
// uploads, and public playback of compiled videos.
package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/keepsake/keepsake/internal/auth"
	"github.com/keepsake/keepsake/internal/database"
	"github.com/keepsake/keepsake/internal/event"
	"github.com/keepsake/keepsake/internal/geoip"
	"github.com/keepsake/keepsake/internal/ratelimit"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB               database.DBTX
	Pinger           Pinger
	Storage          event.ObjectStorage
	Geo              *geoip.Resolver
	JWTSecret        string
	BaseURL          string
	MaxUploadBytes   int64
	S3PublicEndpoint string
}

type Server struct {
	router       chi.Router
	pinger       Pinger
	authHandler  *auth.Handler
	eventHandler *event.Handler
	limiters     []*ratelimit.Limiter
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.S3PublicEndpoint,
	}))

	s := &Server{router: r, pinger: cfg.Pinger}

	if cfg.DB != nil {
		jwtSecret := cfg.JWTSecret
		if jwtSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}

		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}

		secureCookies := strings.HasPrefix(baseURL, "https://")
		s.authHandler = auth.NewHandler(cfg.DB, jwtSecret, secureCookies)
		s.eventHandler = event.NewHandler(cfg.DB, cfg.Storage, cfg.Geo, baseURL, cfg.MaxUploadBytes)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter janitors.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

func (s *Server) newLimiter(requestsPerSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(requestsPerSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	if s.authHandler != nil {
		authLimiter := s.newLimiter(0.5, 5)
		s.router.Route("/api/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", s.authHandler.Register)
			r.Post("/login", s.authHandler.Login)
			r.Post("/refresh", s.authHandler.Refresh)
			r.Post("/logout", s.authHandler.Logout)
		})
	}

	if s.eventHandler != nil {
		apiLimiter := s.newLimiter(5, 20)
		s.router.Route("/api/events", func(r chi.Router) {
			r.Use(apiLimiter.Middleware)

			// Contributor upload: the invite link is the only credential.
			// Tight per-IP limit since the endpoint accepts large bodies.
			uploadLimiter := s.newLimiter(0.2, 3)
			r.With(uploadLimiter.Middleware).
				Post("/{id}/invitees/{inviteeID}/upload", s.eventHandler.UploadClip)

			r.Group(func(r chi.Router) {
				r.Use(s.authHandler.Middleware)
				r.Post("/", s.eventHandler.CreateEvent)
				r.Get("/", s.eventHandler.ListEvents)
				r.Get("/{id}", s.eventHandler.GetEvent)
				r.Delete("/{id}", s.eventHandler.DeleteEvent)

				r.Post("/{id}/invitees", s.eventHandler.AddInvitee)
				r.Get("/{id}/invitees", s.eventHandler.ListInvitees)
				r.Delete("/{id}/invitees/{inviteeID}", s.eventHandler.DeleteInvitee)

				r.Get("/{id}/uploads", s.eventHandler.ListUploads)
				r.Get("/{id}/uploads/{uploadID}/file", s.eventHandler.UploadFile)
				r.Delete("/{id}/uploads/{uploadID}", s.eventHandler.DeleteUpload)

				r.Post("/{id}/compiled", s.eventHandler.PublishCompiled)
				r.Get("/{id}/compiled", s.eventHandler.GetCompiled)
				r.Get("/{id}/compiled/views", s.eventHandler.ViewStats)
			})
		})

		watchLimiter := s.newLimiter(10, 30)
		s.router.With(watchLimiter.Middleware).Get("/api/watch/{shareToken}", s.eventHandler.Watch)
		s.router.With(watchLimiter.Middleware).Get("/watch/{shareToken}", s.eventHandler.WatchPage)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
