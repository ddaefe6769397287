package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amirk1998/car-rental-client/internal/security"
)

// SQLStore keeps entries in the kv_store table of the encrypted database.
// When an encryptor is set, values are additionally sealed with the key
// name as associated data.
type SQLStore struct {
	db        *sql.DB
	encryptor *security.FieldEncryptor
}

// NewSQLStore creates a store over db. encryptor may be nil.
func NewSQLStore(db *sql.DB, encryptor *security.FieldEncryptor) *SQLStore {
	return &SQLStore{db: db, encryptor: encryptor}
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_store WHERE key = ?`

	var stored string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&stored)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if s.encryptor == nil {
		return stored, true, nil
	}

	value, err := s.encryptor.Decrypt(stored, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	stored := value
	if s.encryptor != nil {
		sealed, err := s.encryptor.Encrypt(value, key)
		if err != nil {
			return fmt.Errorf("failed to seal %s: %w", key, err)
		}
		stored = sealed
	}

	query := `
        INSERT INTO kv_store (key, value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
    `

	if _, err := s.db.ExecContext(ctx, query, key, stored, time.Now()); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE key = ?`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}
