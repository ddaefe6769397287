package database

import (
	"database/sql"
	"fmt"
)

// Migrate creates the local tables. There is no versioning: every statement
// is idempotent.
func Migrate(db *sql.DB) error {
	// Durable key-value entries (session token, cached profile)
	kvSchema := `
    CREATE TABLE IF NOT EXISTS kv_store (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := db.Exec(kvSchema); err != nil {
		return fmt.Errorf("failed to create kv_store table: %w", err)
	}

	// Ledger of booking+payment attempts, keyed by idempotency key
	attemptsSchema := `
    CREATE TABLE IF NOT EXISTS booking_attempts (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        idempotency_key TEXT UNIQUE NOT NULL,
        car_id INTEGER NOT NULL,
        start_date TEXT NOT NULL,
        end_date TEXT NOT NULL,
        booking_id INTEGER,
        booking_data TEXT NOT NULL DEFAULT '',
        status TEXT NOT NULL,
        last_error TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    
    CREATE INDEX IF NOT EXISTS idx_attempts_status ON booking_attempts(status);
    CREATE INDEX IF NOT EXISTS idx_attempts_booking ON booking_attempts(booking_id);
    `

	if _, err := db.Exec(attemptsSchema); err != nil {
		return fmt.Errorf("failed to create booking_attempts table: %w", err)
	}

	// Ledgers created before booking responses were kept
	if err := addColumn(db, "booking_attempts", "booking_data", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}

	return nil
}

func addColumn(db *sql.DB, table, column, decl string) error {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}
