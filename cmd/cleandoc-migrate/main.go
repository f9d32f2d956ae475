package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/storage"
)

var (
	dsn     = flag.String("dsn", os.Getenv("CLEANDOC_POSTGRES_DSN"), "Postgres connection string (default: $CLEANDOC_POSTGRES_DSN)")
	dryRun  = flag.Bool("dry-run", false, "Apply the pending migrations inside a transaction and roll it back")
	timeout = flag.Duration("timeout", 2*time.Minute, "Give up after this long")
)

func main() {
	flag.Parse()

	log.Init(log.Config{Level: log.InfoLevel, Output: os.Stderr})
	logger := log.WithComponent("migrate")

	if *dsn == "" {
		logger.Fatal().Msg("--dsn or CLEANDOC_POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, *dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}
	defer store.Close()

	logger.Info().
		Int("known_migrations", len(storage.Migrations)).
		Bool("dry_run", *dryRun).
		Msg("Applying schema")

	applied, err := storage.Migrate(ctx, store.Pool(), *dryRun)
	if err != nil {
		logger.Fatal().Err(err).Msg("Migration failed")
	}

	if len(applied) == 0 {
		logger.Info().Msg("✓ Schema is up to date")
		return
	}
	for _, v := range applied {
		for _, m := range storage.Migrations {
			if m.Version == v {
				logger.Info().Int("version", v).Str("name", m.Name).Msg("Migration applied")
			}
		}
	}

	if *dryRun {
		logger.Info().Ints("versions", applied).Msg("Dry run completed, transaction rolled back")
		return
	}
	logger.Info().Ints("versions", applied).Msg("✓ Migration completed")
}
