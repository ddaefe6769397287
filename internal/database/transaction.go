package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const defaultTxTimeout = 30 * time.Second

type TransactionManager struct {
	db      *sql.DB
	timeout time.Duration
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *sql.DB) *TransactionManager {
	return &TransactionManager{db: db, timeout: defaultTxTimeout}
}

// Execute runs fn within a transaction, committing when it returns nil and
// rolling back otherwise (including on panic).
func (tm *TransactionManager) Execute(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, tm.timeout)
	defer cancel()

	tx, err := tm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin: %v", errors.ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %v", errors.ErrTransactionFailed, err)
	}

	return nil
}
