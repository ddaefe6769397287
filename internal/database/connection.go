package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

type Config struct {
	Path string
	// EncryptionKey is the raw key as 64 hex characters.
	EncryptionKey string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MaxIdleTime   time.Duration
}

// Connect opens the encrypted local store
func Connect(cfg Config) (*sql.DB, error) {
	// Ensure data directory exists with secure permissions
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	// Raw hex key: SQLCipher skips its own KDF since the key is already
	// derived with Argon2id.
	dsn := fmt.Sprintf(
		"file:%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON",
		cfg.Path,
		cfg.EncryptionKey,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	// A wrong key only shows up on first read
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrDatabaseConnection, err)
	}

	if err := configureSecurePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database (wrong STORE_ENCRYPTION_KEY?): %w", err)
	}

	if err := os.Chmod(cfg.Path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set file permissions: %w", err)
	}

	return db, nil
}

// configureSecurePragmas sets secure database settings
func configureSecurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA secure_delete = ON",
		"PRAGMA synchronous = FULL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}
