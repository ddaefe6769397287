package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirk1998/car-rental-client/internal/database"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

const attemptColumns = `id, idempotency_key, car_id, start_date, end_date, booking_id, booking_data, status, last_error, created_at, updated_at`

// BookingAttemptRepository is the local ledger of booking+payment attempts.
type BookingAttemptRepository struct {
	db *sql.DB
	tm *database.TransactionManager
}

// NewBookingAttemptRepository creates a new ledger repository
func NewBookingAttemptRepository(db *sql.DB) *BookingAttemptRepository {
	return &BookingAttemptRepository{
		db: db,
		tm: database.NewTransactionManager(db),
	}
}

// Create records a new attempt in the pending state. The key of an earlier
// attempt is only reused when that attempt is rejected or compensated;
// otherwise the row is left alone and ErrDuplicateSubmission is returned,
// so a booking still waiting for deletion never loses its id.
func (r *BookingAttemptRepository) Create(ctx context.Context, attempt *models.BookingAttempt) error {
	query := `
        INSERT INTO booking_attempts (idempotency_key, car_id, start_date, end_date, status, last_error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, '', ?, ?)
        ON CONFLICT(idempotency_key) DO UPDATE SET
            car_id = excluded.car_id,
            start_date = excluded.start_date,
            end_date = excluded.end_date,
            booking_id = NULL,
            booking_data = '',
            status = excluded.status,
            last_error = '',
            updated_at = excluded.updated_at
        WHERE booking_attempts.status IN (?, ?)
    `

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query,
		attempt.IdempotencyKey,
		attempt.CarID,
		attempt.StartDate,
		attempt.EndDate,
		models.AttemptPending,
		now,
		now,
		models.AttemptRejected,
		models.AttemptCompensated,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking attempt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create booking attempt: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("booking attempt %s: %w", attempt.IdempotencyKey, errors.ErrDuplicateSubmission)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get booking attempt ID: %w", err)
	}

	if id > 0 {
		attempt.ID = id
	}
	attempt.Status = models.AttemptPending
	attempt.CreatedAt = now
	attempt.UpdatedAt = now

	return nil
}

// GetByKey retrieves an attempt by its idempotency key
func (r *BookingAttemptRepository) GetByKey(ctx context.Context, key string) (*models.BookingAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM booking_attempts WHERE idempotency_key = ?`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking attempt: %w", err)
	}

	return attempt, nil
}

// MarkBooked records the server booking id and the booking data, and moves
// the attempt to booked.
func (r *BookingAttemptRepository) MarkBooked(ctx context.Context, key string, bookingID int64, data json.RawMessage) error {
	return r.transition(ctx, key, models.AttemptBooked, &booked{id: bookingID, data: data}, "")
}

type booked struct {
	id   int64
	data json.RawMessage
}

// UpdateStatus moves the attempt to status, keeping lastErr as the reason.
// Transitions the state machine does not allow are refused.
func (r *BookingAttemptRepository) UpdateStatus(ctx context.Context, key string, status models.AttemptStatus, lastErr string) error {
	return r.transition(ctx, key, status, nil, lastErr)
}

func (r *BookingAttemptRepository) transition(ctx context.Context, key string, to models.AttemptStatus, b *booked, lastErr string) error {
	return r.tm.Execute(ctx, func(tx *sql.Tx) error {
		var current models.AttemptStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM booking_attempts WHERE idempotency_key = ?`, key,
		).Scan(&current)
		if err == sql.ErrNoRows {
			return errors.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read attempt status: %w", err)
		}

		if !current.CanTransitionTo(to) {
			return fmt.Errorf("booking attempt %s: illegal transition %s -> %s", key, current, to)
		}

		query := `UPDATE booking_attempts SET status = ?, last_error = ?, updated_at = ?`
		args := []interface{}{to, lastErr, time.Now()}
		if b != nil {
			query += `, booking_id = ?, booking_data = ?`
			args = append(args, b.id, string(b.data))
		}
		query += ` WHERE idempotency_key = ?`
		args = append(args, key)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update booking attempt: %w", err)
		}
		return nil
	})
}

// ListByStatus returns attempts in the given state, newest first
func (r *BookingAttemptRepository) ListByStatus(ctx context.Context, status models.AttemptStatus, limit int) ([]*models.BookingAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + attemptColumns + ` FROM booking_attempts WHERE status = ? ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list booking attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*models.BookingAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return attempts, nil
}

// ClaimCompensations selects compensation_failed attempts that have not been
// touched for at least backoff and bumps their updated_at inside the same
// transaction, so a second reconciler run within backoff skips them.
func (r *BookingAttemptRepository) ClaimCompensations(ctx context.Context, backoff time.Duration, limit int) ([]*models.BookingAttempt, error) {
	if limit <= 0 {
		limit = 20
	}

	var claimed []*models.BookingAttempt
	err := r.tm.Execute(ctx, func(tx *sql.Tx) error {
		cutoff := time.Now().Add(-backoff)
		rows, err := tx.QueryContext(ctx,
			`SELECT `+attemptColumns+` FROM booking_attempts
             WHERE status = ? AND booking_id IS NOT NULL AND updated_at <= ?
             ORDER BY updated_at ASC LIMIT ?`,
			models.AttemptCompensationFailed, cutoff, limit)
		if err != nil {
			return fmt.Errorf("failed to select compensations: %w", err)
		}

		for rows.Next() {
			attempt, err := scanAttempt(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan booking attempt: %w", err)
			}
			claimed = append(claimed, attempt)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows iteration error: %w", err)
		}

		now := time.Now()
		for _, attempt := range claimed {
			if _, err := tx.ExecContext(ctx,
				`UPDATE booking_attempts SET updated_at = ? WHERE id = ?`, now, attempt.ID,
			); err != nil {
				return fmt.Errorf("failed to claim attempt %d: %w", attempt.ID, err)
			}
			attempt.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAttempt(row rowScanner) (*models.BookingAttempt, error) {
	attempt := &models.BookingAttempt{}
	var bookingID sql.NullInt64
	var data string
	err := row.Scan(
		&attempt.ID,
		&attempt.IdempotencyKey,
		&attempt.CarID,
		&attempt.StartDate,
		&attempt.EndDate,
		&bookingID,
		&data,
		&attempt.Status,
		&attempt.LastError,
		&attempt.CreatedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if bookingID.Valid {
		id := bookingID.Int64
		attempt.BookingID = &id
	}
	if data != "" {
		attempt.BookingData = json.RawMessage(data)
	}
	return attempt, nil
}
