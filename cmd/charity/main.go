package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"charity/internal/backend"
	"charity/internal/cache"
	"charity/internal/cli"
	"charity/internal/config"
	apphttp "charity/internal/http"
	applog "charity/internal/log"
	"charity/internal/middleware/ratelimit"
	"charity/internal/services"
	"charity/internal/session"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)
	logger.Info("Starting charity server", "port", cfg.Port, "backend", cfg.DataBackend)

	res := cli.InitBackend(context.Background(), logger, cfg)

	sess, err := session.Open(cfg.SessionFile)
	if err != nil {
		logger.Error("Failed to open session file", applog.FieldError, err, "path", cfg.SessionFile)
		os.Exit(1)
	}

	mode, err := services.ParseRaisedUpdateMode(cfg.RaisedUpdateMode)
	if err != nil {
		logger.Error("Invalid raised update mode", applog.FieldError, err)
		os.Exit(1)
	}

	summaries := cache.NewSummaries(1000, 5*time.Minute)
	donationOpts := []services.DonationOption{
		services.WithRaisedUpdateMode(mode),
		services.WithRecordedHook(summaries.Invalidate),
	}
	if res.Publisher != nil {
		donationOpts = append(donationOpts, services.WithPublisher(res.Publisher))
	}

	catalog := services.NewCatalogService(res.Store)
	if cfg.SeedCampaigns {
		n, err := catalog.SeedSampleCampaigns(context.Background())
		if err != nil {
			logger.Warn("Seeding sample campaigns failed", applog.FieldError, err)
		}
		logger.Info("Sample campaigns seeded", "created", n)
	}

	identity, sessions, err := newIdentity(cfg, res, sess)
	if err != nil {
		logger.Error("Failed to initialize identity provider", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:     res.Store,
		Catalog:   catalog,
		Donations: services.NewDonationService(res.Store, donationOpts...),
		Summary:   services.NewSummaryService(res.Store),
		// Login state is per client (Sessions), not the device session.
		Accounts:  services.NewAccountService(res.Store, nil),
		Identity:  identity,
		Sessions:  sessions,
		Summaries: summaries,
		Logger:    logger.WithComponent(applog.ComponentHTTP),
	}, apphttp.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   ratelimit.DefaultConfig(),
		SessionTTL:  cfg.SessionTTL,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Listening", "addr", srv.Addr, "raised_update_mode", string(mode))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newIdentity verifies Firebase ID tokens when enabled. Otherwise clients
// present the token /api/login issued them, kept in the session file.
func newIdentity(cfg *config.Config, res *backend.BackendResult, sess *session.Store) (apphttp.Identity, apphttp.SessionIssuer, error) {
	if !cfg.FirebaseAuthEnabled {
		return apphttp.TokenIdentity{Sessions: sess}, sess, nil
	}
	if res.App == nil {
		return nil, nil, errors.New("firebase auth enabled but no firebase app configured")
	}
	client, err := res.App.Auth(context.Background())
	if err != nil {
		return nil, nil, err
	}
	return apphttp.FirebaseIdentity{Verifier: client}, nil, nil
}
