// Package http serves the donation API: JSON endpoints for accounts,
// campaigns and donations, plus websocket feeds that push live updates.
package http

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"charity/internal/cache"
	"charity/internal/core"
	applog "charity/internal/log"
	"charity/internal/middleware/ratelimit"
	"charity/internal/middleware/security"
	"charity/internal/middleware/trace"
	"charity/internal/repository"
	"charity/internal/services"
	"charity/internal/store"
)

// Deps are the services the handlers call.
type Deps struct {
	Store     store.Store
	Catalog   *services.CatalogService
	Donations *services.DonationService
	Summary   *services.SummaryService
	Accounts  *services.AccountService
	Identity  Identity
	// Sessions issues tokens at login; nil when identity comes from
	// Firebase ID tokens.
	Sessions SessionIssuer
	// Summaries may be nil, disabling the summary cache.
	Summaries *cache.Summaries
	Logger    *applog.Logger
}

type Options struct {
	CORSOrigins []string
	RateLimit   ratelimit.Config
	// SessionTTL is the lifetime of login tokens (default 24h).
	SessionTTL time.Duration

	// catalogSeen is called with the campaign count of every catalog
	// snapshot the summary cache has reacted to.
	catalogSeen func(campaigns int)
}

type Server struct {
	http.Server
	deps     Deps
	limiter  *ratelimit.Limiter
	caches   *cache.Manager
	clientIP *security.ClientIPResolver
	upgrader websocket.Upgrader

	sessionTTL  time.Duration
	catalogSeen func(int)
	stopWatches context.CancelFunc
	watchDone   chan struct{}

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if len(opts.RateLimit.Methods) == 0 {
		opts.RateLimit.Methods = []string{http.MethodPost}
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}

	s := &Server{
		deps:        deps,
		limiter:     ratelimit.NewLimiter(opts.RateLimit),
		caches:      cache.NewManager(),
		clientIP:    security.NewClientIPResolver(),
		sessionTTL:  opts.SessionTTL,
		catalogSeen: opts.catalogSeen,
		watchDone:   make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.CORSOrigins),
	}
	watchCtx, stop := context.WithCancel(context.Background())
	s.stopWatches = stop
	if deps.Summaries != nil {
		s.caches.Register(deps.Summaries)
		s.caches.StartCleanup(10 * time.Minute)
		go s.watchCategories(watchCtx)
	} else {
		close(s.watchDone)
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware().Middleware)
	r.Use(applog.Middleware(s.deps.Logger, trace.FromRequest))
	r.Use(applog.AccessLog(s.clientIP.Resolve))
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", trace.HeaderRequestID},
		ExposedHeaders:   []string{trace.HeaderRequestID},
		AllowCredentials: !slices.Contains(opts.CORSOrigins, "*"),
		MaxAge:           300,
	}).Handler)
	r.Use(s.limiter.Middleware(s.clientIP.Resolve, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "too many requests, please try again later")
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Get("/profile", s.handleProfile)
		r.Put("/profile/image", s.handleProfileImage)

		r.Get("/campaigns", s.handleCampaigns)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", s.handleCampaign)
			r.Get("/donations", s.handleCampaignDonations)
			r.Post("/donations", s.handleDonate)
			r.Get("/qrcode.png", s.handleCampaignQRCode)
		})

		r.Get("/me/donations", s.handleMyDonations)
		r.Get("/me/summary", s.handleMySummary)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Get("/campaigns", s.wsCampaigns)
		r.Get("/campaigns/{id}", s.wsCampaign)
		r.Get("/me/donations", s.wsMyDonations)
		r.Get("/me/summary", s.wsMySummary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint")
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reads the catalog root; an empty catalog still counts as ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if _, err := s.deps.Store.Get(ctx, repository.CampaignsPath()); err != nil && !errors.Is(err, store.ErrNotFound) {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// userID resolves the caller or writes the error response and returns false.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.deps.Identity == nil {
		writeServiceError(w, r, ErrUnauthenticated)
		return "", false
	}
	id, err := s.deps.Identity.UserID(r)
	if err != nil {
		writeServiceError(w, r, err)
		return "", false
	}
	return id, true
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.stopWatches()
		s.limiter.Stop()
		s.caches.Stop()
		err = s.Server.Shutdown(ctx)
		<-s.watchDone
	})
	return err
}

// watchCategories purges cached summaries whenever the campaign to category
// mapping changes, whichever process changed it. Raised amount updates are
// ignored.
func (s *Server) watchCategories(ctx context.Context) {
	defer close(s.watchDone)
	if s.deps.Catalog == nil {
		return
	}
	for ctx.Err() == nil {
		feed, err := s.deps.Catalog.ListCampaigns(ctx, core.AllCategories)
		if err != nil {
			applog.LogError(ctx, "Catalog watch failed", err, applog.ComponentCache, applog.OpSubscribe, nil)
			return
		}
		var last map[string]string
		for campaigns := range feed.C {
			categories := make(map[string]string, len(campaigns))
			for _, c := range campaigns {
				categories[c.ID] = c.Category
			}
			if last != nil && !maps.Equal(last, categories) {
				s.deps.Summaries.Purge()
				slog.DebugContext(ctx, "Campaign categories changed, summaries purged", applog.FieldComponent, applog.ComponentCache)
			}
			last = categories
			if s.catalogSeen != nil {
				s.catalogSeen(len(campaigns))
			}
		}
		feed.Cancel()
		if ctx.Err() != nil {
			return
		}
		// Changes made while resubscribing would go unnoticed.
		s.deps.Summaries.Purge()
		if err := feed.Err(); err != nil {
			applog.LogError(ctx, "Catalog watch ended, resubscribing", err, applog.ComponentCache, applog.OpSubscribe, nil)
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
}
