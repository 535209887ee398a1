package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter's ambient middleware.
type RouterOptions struct {
	// APIKey, when non-empty, is required in X-API-Key for every /event/*
	// request (§6 "Auth"). Empty disables auth.
	APIKey string
	// RateLimitPerMinute bounds requests per X-API-Key request header value
	// (or remote address when that header is absent) before responding 429
	// (§6 "Rate-limit"). Zero
	// disables rate limiting.
	RateLimitPerMinute int
	// AllowedOrigins configures CORS for browser-based callers. Defaults
	// to "*" when empty.
	AllowedOrigins []string
}

// NewRouter builds the chi.Router exposing the full §6 HTTP surface.
func NewRouter(s *Server, opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/health", handleHealth)

	r.Route("/event", func(er chi.Router) {
		er.Use(authMiddleware(opts.APIKey))
		if opts.RateLimitPerMinute > 0 {
			er.Use(newRateLimiter(opts.RateLimitPerMinute).middleware)
		}

		er.Post("/start", s.handleStart)
		er.Post("/chat", s.handleChat)
		er.Post("/parse", s.handleParse)
		er.Post("/start/stream", s.handleStartStream)
		er.Post("/chat/stream", s.handleChatStream)
		er.Get("/{session_id}", s.handleGet)
		er.Get("/{session_id}/report", s.handleReport)
		er.Get("/{session_id}/report/markdown", s.handleReportMarkdown)
		er.Delete("/{session_id}", s.handleDelete)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
