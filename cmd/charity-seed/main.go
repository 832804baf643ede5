package main

import (
	"context"
	"os"
	"time"

	"charity/internal/cli"
	applog "charity/internal/log"
	"charity/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentCatalog)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res := cli.InitBackend(ctx, logger, cfg)
	defer res.Cleanup()

	created, err := services.NewCatalogService(res.Store).SeedSampleCampaigns(ctx)
	if err != nil {
		logger.Error("Seeding finished with errors", applog.FieldError, err, "created", created)
		res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Sample campaigns seeded", "created", created, "backend", cfg.DataBackend)
}
