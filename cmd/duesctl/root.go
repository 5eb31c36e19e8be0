package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/club-dues/app"
	"github.com/warp/club-dues/config"
	"github.com/warp/club-dues/observability"
)

// cli carries what every subcommand shares.
type cli struct {
	dbPath   string
	logLevel string
	app      *app.App
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "duesctl",
		Short: "Club dues admin tool",
		Long: `duesctl runs the club dues sweeps (generation, overdue, reminders) and
seeds fixtures against a dues database. Configuration comes from DUES_*
environment variables and .env; flags override them.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.dbPath, "db", "", "SQLite database path (default DUES_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level (default DUES_LOG_LEVEL)")

	rootCmd.AddCommand(newSeedCmd(c))
	rootCmd.AddCommand(newGenerateCmd(c))
	rootCmd.AddCommand(newOverdueCmd(c))
	rootCmd.AddCommand(newRemindCmd(c))
	rootCmd.AddCommand(newChargesCmd(c))
	return rootCmd
}

func (c *cli) open(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.dbPath != "" {
		cfg.DBPath = c.dbPath
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	// Nothing scrapes a one-shot process.
	cfg.MetricsEnabled = false

	logger := observability.NewLogger(cfg.LogLevel, cfg.Env)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// now resolves --as-of ("2006-01-02") in the configured time zone, keeping
// the current time of day. Empty means now.
func (c *cli) now(asOf string) (time.Time, error) {
	now := c.app.Jobs.Now()
	if asOf == "" {
		return now, nil
	}
	loc := c.app.Jobs.Location
	day, err := time.ParseInLocation("2006-01-02", asOf, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", asOf)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), now.Hour(), now.Minute(), now.Second(), 0, loc), nil
}
