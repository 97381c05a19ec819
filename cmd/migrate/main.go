package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-dashboard/internal/config"
	"github.com/dvloznov/finance-dashboard/internal/logger"
	"github.com/dvloznov/finance-dashboard/internal/rules"
	"github.com/dvloznov/finance-dashboard/internal/store"
)

type options struct {
	vendor      store.Vendor
	databaseURL string
	appliedBy   string
	rulesPath   string
	seed        bool
	status      bool
}

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var (
		vendor      = flag.String("vendor", string(cfg.DBVendor), "Database vendor: sqlite or postgresql (or set DB_VENDOR env)")
		databaseURL = flag.String("database-url", cfg.DatabaseURL, "Database URL (or set DATABASE_URL env)")
		appliedBy   = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		rulesPath   = flag.String("rules", cfg.RulesPath, "Rules YAML used for seeding (default: embedded rules)")
		seed        = flag.Bool("seed", true, "Seed banks, payment methods and categories after migrating")
		status      = flag.Bool("status", false, "Only list applied migrations")
	)
	flag.Parse()

	v, err := store.ParseVendor(*vendor)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -vendor")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opts := options{
		vendor:      v,
		databaseURL: *databaseURL,
		appliedBy:   *appliedBy,
		rulesPath:   *rulesPath,
		seed:        *seed,
		status:      *status,
	}
	if err := run(ctx, opts, os.Stdout, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func run(ctx context.Context, opts options, out io.Writer, log zerolog.Logger) error {
	if opts.databaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	s, err := store.Open(ctx, opts.vendor, opts.databaseURL)
	if err != nil {
		return err
	}
	defer s.Close()

	if !opts.status {
		n, err := s.Migrate(ctx, opts.appliedBy, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Applied %d migration(s)\n", n)

		if opts.seed {
			doc, err := rules.Load(opts.rulesPath)
			if err != nil {
				return err
			}
			counts, err := s.Seed(ctx, doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Seeded %d bank(s), %d payment method(s), %d categor(ies)\n",
				counts.Banks, counts.PaymentMethods, counts.Categories)
		}
	}

	applied, err := s.AppliedMigrations(ctx)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(out, "  %04d  %-32s  %s  by %s\n", m.Version, m.Name, m.AppliedAt, m.AppliedBy)
	}
	return nil
}
