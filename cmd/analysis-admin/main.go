// Command analysis-admin is the operator CLI for the analysis queue.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/mmk-analysis-api/config"
	"github.com/target/mmk-analysis-api/internal/bootstrap"
)

const defaultCommandTimeout = 5 * time.Minute

// commandContext carries what every subcommand needs once config is loaded.
type commandContext struct {
	Logger  *slog.Logger
	Config  config.AppConfig
	Timeout time.Duration
	JSON    bool
}

func main() {
	logger := bootstrap.InitLogger()
	if err := newRootCmd(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	cc := &commandContext{Logger: logger}

	root := &cobra.Command{
		Use:           "analysis-admin",
		Short:         "Operate the analysis queue and webhook deliveries",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := bootstrap.LoadConfig()
			if err != nil {
				return err
			}
			if lvlErr := bootstrap.SetLogLevel(cfg.LogLevel); lvlErr != nil {
				cc.Logger.Warn("keeping default log level", "error", lvlErr)
			}
			cc.Config = cfg
			return nil
		},
	}
	root.PersistentFlags().DurationVar(&cc.Timeout, "timeout", defaultCommandTimeout, "overall command timeout")
	root.PersistentFlags().BoolVar(&cc.JSON, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newMigrateCmd(cc),
		newDBResetCmd(cc),
		newJobsCmd(cc),
		newDeliveriesCmd(cc),
		newReapCmd(cc),
	)
	return root
}

func newMigrateCmd(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cc.withDatabase(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				cc.Logger.Info("running database migrations")
				if err := bootstrap.RunMigrations(ctx, db, cc.Logger); err != nil {
					return err
				}
				cc.Logger.Info("migrations completed successfully")
				return nil
			})
		},
	}
}

func newDBResetCmd(cc *commandContext) *cobra.Command {
	var yes, allowRemote bool
	cmd := &cobra.Command{
		Use:   "db-reset",
		Short: "Drop the database schema and re-run migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pg := cc.Config.Postgres
			if err := guardRemoteHost(cmd, pg.Host, allowRemote, "drop and recreate the public schema"); err != nil {
				return err
			}
			target := fmt.Sprintf("database %q on %s:%d", pg.Name, pg.Host, pg.Port)
			if err := confirmAction(cmd, yes, "reset database schema for "+target); err != nil {
				return err
			}

			return cc.withDatabase(cmd.Context(), func(ctx context.Context, db *sql.DB) error {
				cc.Logger.Info("dropping public schema", "database", pg.Name)
				if err := resetSchema(ctx, db, pg.User, cc.Logger); err != nil {
					return err
				}
				cc.Logger.Info("re-running database migrations")
				if err := bootstrap.RunMigrations(ctx, db, cc.Logger); err != nil {
					return err
				}
				cc.Logger.Info("database reset completed successfully")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&allowRemote, "allow-remote", false, "allow running against a non-local database host")
	return cmd
}

func newReapCmd(cc *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Run one retention pass: fail stale jobs and delete expired rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := confirmAction(cmd, yes, "fail stale processing jobs and delete expired jobs and deliveries"); err != nil {
				return err
			}
			return cc.withServices(cmd.Context(), func(ctx context.Context, rt *runtime) error {
				runner, err := bootstrap.NewReaperRunner(bootstrap.ReaperConfig{
					Repo:   rt.services.Retention,
					Events: rt.services.Deliveries,
					Logger: cc.Logger,
					Config: cc.Config.Reaper,
				})
				if err != nil {
					return err
				}
				report, err := runner.RunOnce(ctx)
				if err != nil {
					return fmt.Errorf("retention pass: %w", err)
				}
				return cc.render(cmd, report, func() { renderCleanupReport(cmd.OutOrStdout(), report) })
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// commandCtx bounds a command by --timeout and ends it on SIGINT or SIGTERM.
func (cc *commandContext) commandCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	timeout := cc.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
