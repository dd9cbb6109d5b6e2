// Package cli wires the bmsync commands: comparing the two directories,
// importing missing users, and repairing or rolling back earlier imports.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/creetelo/bmsync/internal/baremetrics"
	"github.com/creetelo/bmsync/internal/config"
	"github.com/creetelo/bmsync/internal/ghl"
	"github.com/creetelo/bmsync/internal/pkg/logger"
	"github.com/creetelo/bmsync/internal/pkg/runlock"
	"github.com/creetelo/bmsync/internal/repository/postgres"
)

var (
	configPath string
	verbose    bool
)

// app holds the wired collaborators every command shares. Everything here
// is resolved once at startup; a failure is a setup error and exits 1
// before any per-entry work happens.
type app struct {
	cfg         *config.Config
	db          *sql.DB
	redisClient *redis.Client
	ghl         *ghl.Client
	billing     *baremetrics.Client
	ledger      *postgres.LedgerRepo
	comparisons *postgres.ComparisonRepo
	sourceID    string
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redisClient != nil {
		a.redisClient.Close()
	}
}

// setup loads config and connects the collaborators. needSource controls
// whether a Baremetrics source ID must be resolved; ledger-only commands
// like status and reset skip it.
func setup(ctx context.Context, needSource bool) (*app, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verbose {
		logger.SetLevel(logger.DEBUG)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	a := &app{
		cfg:         cfg,
		db:          db,
		ghl:         ghl.NewClient(cfg.GHL),
		billing:     baremetrics.NewClient(cfg.Baremetrics),
		ledger:      postgres.NewLedgerRepo(db),
		comparisons: postgres.NewComparisonRepo(db),
	}

	if cfg.Redis.Addr != "" {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	if needSource {
		a.sourceID = cfg.Baremetrics.SourceID
		if a.sourceID == "" {
			sources, err := a.billing.ListSources(ctx)
			if err != nil {
				a.close()
				return nil, fmt.Errorf("list baremetrics sources: %w", err)
			}
			if len(sources) == 0 {
				a.close()
				return nil, fmt.Errorf("baremetrics account has no sources")
			}
			a.sourceID = sources[0].ID
			logger.Debug("resolved baremetrics source", "source", a.sourceID)
		}
	}

	return a, nil
}

// lockFactory builds the advisory run lock, Redis when configured, else a
// Postgres advisory lock on the ledger database.
func (a *app) lockFactory() func(key string) runlock.RunLock {
	return func(key string) runlock.RunLock {
		return runlock.New(a.redisClient, a.db, key, a.cfg.LockTTL())
	}
}

// resolveComparison returns the comparison named by flag, or the most
// recent one when the flag is empty.
func (a *app) resolveComparison(ctx context.Context, flag string) (string, error) {
	if flag != "" {
		c, err := a.comparisons.GetByID(ctx, flag)
		if err != nil {
			return "", fmt.Errorf("comparison %s: %w", flag, err)
		}
		return c.ID, nil
	}
	c, err := a.comparisons.Latest(ctx)
	if err == postgres.ErrNotFound {
		return "", fmt.Errorf("no saved comparisons; run `bmsync compare --save` first")
	}
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bmsync",
		Short:         "Reconcile GoHighLevel contacts with Baremetrics customers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newCompareCmd(),
		newImportCmd(),
		newStatusCmd(),
		newResetCmd(),
		newDeleteCmd(),
		newFixDatesCmd(),
		newAttributesCmd(),
		newPlansCmd(),
		newMigrateCmd(),
	)
	return root
}

// Execute runs the CLI. Per-entry failures inside a batch never bubble up
// here; only setup errors make the process exit non-zero.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
