package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/target/mmk-analysis-api/internal/migrate"
)

// queueTables are the tables the job queue and webhook delivery depend on.
var queueTables = []string{"analysis_jobs", "webhooks", "webhook_deliveries"}

// RunMigrations applies pending migrations and then checks that the queue
// schema is in place.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := migrate.Run(ctx, db); err != nil {
		return err
	}
	return VerifySchema(ctx, db)
}

// VerifySchema reports the queue tables missing from the current search_path.
// It is also used on startup when migrations are run out of band.
func VerifySchema(ctx context.Context, db *sql.DB) error {
	var missing []string
	for _, table := range queueTables {
		var found sql.NullString
		if err := db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, table).Scan(&found); err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !found.Valid {
			missing = append(missing, table)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema is missing tables: %s", strings.Join(missing, ", "))
	}
	return nil
}
