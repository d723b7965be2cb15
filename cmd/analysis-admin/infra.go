package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/target/mmk-analysis-api/internal/bootstrap"
)

var errAborted = errors.New("aborted by user")

// runtime is the wired service graph for commands that go through services.
type runtime struct {
	db       *sql.DB
	redis    redis.UniversalClient
	services bootstrap.ServiceContainer
}

func (cc *commandContext) withDatabase(parent context.Context, f func(context.Context, *sql.DB) error) error {
	ctx, cancel := cc.commandCtx(parent)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cc.Config.Postgres, Logger: cc.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cc.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

// withServices connects Postgres, and Redis when enabled, then wires the
// same services the daemon runs.
func (cc *commandContext) withServices(parent context.Context, f func(context.Context, *runtime) error) error {
	return cc.withDatabase(parent, func(ctx context.Context, db *sql.DB) error {
		rt := &runtime{db: db}
		if cc.Config.Redis.Enabled {
			client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: cc.Config.Redis, Logger: cc.Logger})
			if err != nil {
				return fmt.Errorf("connect redis: %w", err)
			}
			rt.redis = client
			defer func() {
				if cerr := client.Close(); cerr != nil {
					cc.Logger.Warn("redis close failed", "error", cerr)
				}
			}()
		}

		services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
			Config:      &cc.Config,
			DB:          db,
			RedisClient: rt.redis,
			Logger:      cc.Logger,
		})
		if err != nil {
			return fmt.Errorf("build services: %w", err)
		}
		rt.services = services
		return f(ctx, rt)
	})
}

func guardRemoteHost(cmd *cobra.Command, host string, allow bool, action string) error {
	if !isLikelyRemoteHost(host) {
		return nil
	}
	if !allow {
		return fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "\nWARNING: database host %q does not look like a local address.\nThis operation will %s.\n", host, action)
	fmt.Fprintf(out, "Type %q to continue or press enter to abort: ", host)
	resp, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil || strings.TrimSpace(resp) != host {
		fmt.Fprintln(out, "\nRemote safeguard check failed; aborting.")
		return errAborted
	}
	return nil
}

func confirmAction(cmd *cobra.Command, yes bool, action string) error {
	if yes {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "About to %s.\nContinue? [y/N]: ", action)
	resp, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return errAborted
	}
	switch strings.ToLower(strings.TrimSpace(resp)) {
	case "y", "yes":
		return nil
	default:
		return errAborted
	}
}

func resetSchema(ctx context.Context, db *sql.DB, user string, logger *slog.Logger) error {
	statements := []string{
		"DROP SCHEMA public CASCADE",
		"CREATE SCHEMA public",
		"GRANT ALL ON SCHEMA public TO public",
	}
	if u := strings.TrimSpace(user); u != "" && !strings.EqualFold(u, "public") {
		statements = append(statements, "GRANT ALL ON SCHEMA public TO "+quoteIdentifier(u))
	}

	for _, stmt := range statements {
		logger.DebugContext(ctx, "executing reset statement", "sql", stmt)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" || h == "localhost" || strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}
