package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/services/cron"
	"github.com/spf13/cobra"
)

var Version = "dev"

// Execute runs the learnhub-api command line
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Without a subcommand the API server is started.
func NewRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "learnhub-api",
		Short:         "LearnHub course payments and enrollment API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return SetupAndRunServer(cfg)
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, notification workers and cron jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return SetupAndRunServer(cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			return store.Close()
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the admin and instructor accounts and a sample catalog",
		Long: `Seed the database with accounts from SEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORD and
SEED_INSTRUCTOR_EMAIL/SEED_INSTRUCTOR_PASSWORD. Existing accounts are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return database.RunSeeds(store.DB(), database.SeedOptions{
				AdminEmail:         cfg.Seed.AdminEmail,
				AdminPassword:      cfg.Seed.AdminPassword,
				InstructorEmail:    cfg.Seed.InstructorEmail,
				InstructorPassword: cfg.Seed.InstructorPassword,
			})
		},
	})

	var olderThan time.Duration
	expireCmd := &cobra.Command{
		Use:   "expire-payments",
		Short: "Mark stale pending payments as failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan > 0 {
				cfg.Payments.PendingTTL = olderThan
			}
			return runJob(cfg, cron.JobExpireStalePayments, func(m *cron.CronManager) func(context.Context) (string, error) {
				return m.ExpireStalePayments
			})
		},
	}
	expireCmd.Flags().DurationVar(&olderThan, "older-than", 0, "expire pending payments older than this (default PAYMENT_PENDING_TTL)")
	rootCmd.AddCommand(expireCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "retry-notifications",
		Short: "Redeliver notifications from the dead-letter log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cfg, cron.JobRetryDeadLetters, func(m *cron.CronManager) func(context.Context) (string, error) {
				return m.RetryDeadLetters
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired tokens, old logs and settled dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cfg, cron.JobCleanupOldData, func(m *cron.CronManager) func(context.Context) (string, error) {
				return m.CleanupOldData
			})
		},
	})

	return rootCmd
}

// runJob executes one cron job immediately and records it in cron_job_logs
func runJob(cfg *config.Config, name string, pick func(*cron.CronManager) func(context.Context) (string, error)) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	container, err := NewContainer(cfg, store, Options{SkipRedis: true, Quiet: true})
	if err != nil {
		return err
	}
	container.Dispatcher.Start(context.Background())

	manager := cron.NewCronManager(store.DB(), container.CronDeps())
	runErr := manager.Run(name, 10*time.Minute, pick(manager))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container.Close(ctx)

	return runErr
}
