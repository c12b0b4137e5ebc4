// Command settlectl runs settlement maintenance tasks against the database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nkiryanov/settlement/internal/db"
	"github.com/nkiryanov/settlement/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Getenv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	databaseDSN string
	logLevel    string
}

func newRootCmd(getenv func(string) string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Settlement maintenance: ledger audit, withdrawal processing, secrets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.databaseDSN, "database", "d", getenv("DATABASE_URI"), "Database connection string")
	rootCmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", valueOrDefault(getenv("LOG_LEVEL"), logger.LevelWarn), "Logging level (debug, info, warn, error)")

	rootCmd.AddCommand(auditCmd(opts))
	rootCmd.AddCommand(processCmd(opts, getenv))
	rootCmd.AddCommand(gensecretCmd())

	return rootCmd
}

// Open database and logger for a command. Logs go to stderr, results to stdout
func (o *rootOptions) connect(ctx context.Context) (*pgxpool.Pool, logger.Logger, error) {
	l, err := logger.NewTextLogger(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	if o.databaseDSN == "" {
		return nil, nil, fmt.Errorf("database dsn is required: set --database or DATABASE_URI")
	}

	pool, err := db.Connect(ctx, o.databaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return pool, l, nil
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
