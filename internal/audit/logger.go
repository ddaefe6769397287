package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/logging"
)

// Logger writes audit events to the audit_log table and to a JSONL file.
// With asyncMode a single worker drains a buffered queue; Close flushes it.
// db may be nil, in which case only the file is written.
type Logger struct {
	db         *sql.DB
	logFile    *os.File
	log        *zap.Logger
	asyncMode  bool
	eventQueue chan *Event
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// NewLogger creates a new audit logger
func NewLogger(db *sql.DB, logFilePath string, asyncMode bool, log *zap.Logger) (*Logger, error) {
	if db != nil {
		schema := `
    CREATE TABLE IF NOT EXISTS audit_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME NOT NULL,
        level TEXT NOT NULL,
        action TEXT NOT NULL,
        resource TEXT NOT NULL,
        success BOOLEAN NOT NULL,
        error_msg TEXT,
        metadata TEXT,
        booking_id INTEGER,
        idempotency_key TEXT
    );
    
    CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
    CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
    CREATE INDEX IF NOT EXISTS idx_audit_level ON audit_log(level);
    `

		if _, err := db.Exec(schema); err != nil {
			return nil, fmt.Errorf("failed to create audit log table: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(logFilePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	logger := &Logger{
		db:        db,
		logFile:   logFile,
		log:       logging.OrNop(log),
		asyncMode: asyncMode,
		ctx:       ctx,
		cancel:    cancel,
	}

	if asyncMode {
		logger.eventQueue = make(chan *Event, 1000)
		logger.startAsyncLogger()
	}

	return logger, nil
}

// Log records an audit event
func (al *Logger) Log(event *Event) error {
	event.Timestamp = time.Now()

	if al.asyncMode {
		select {
		case al.eventQueue <- event:
			return nil
		default:
			al.log.Warn("audit queue full, dropping event", zap.String("action", event.Action))
			return fmt.Errorf("audit log queue is full")
		}
	}

	return al.writeEvent(event)
}

// writeEvent writes event to database and file
func (al *Logger) writeEvent(event *Event) error {
	if al.db != nil {
		query := `
        INSERT INTO audit_log (
            timestamp, level, action, resource, success,
            error_msg, metadata, booking_id, idempotency_key
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

		result, err := al.db.Exec(query,
			event.Timestamp,
			event.Level,
			event.Action,
			event.Resource,
			event.Success,
			event.ErrorMsg,
			event.Metadata,
			event.BookingID,
			event.IdempotencyKey,
		)

		if err != nil {
			// Continue to write to file even if DB write fails
			al.log.Warn("failed to write audit event to database", zap.Error(err))
		} else {
			event.ID, _ = result.LastInsertId()
		}
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := al.logFile.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	return nil
}

// startAsyncLogger starts async logging worker
func (al *Logger) startAsyncLogger() {
	al.wg.Add(1)
	go func() {
		defer al.wg.Done()
		for {
			select {
			case event := <-al.eventQueue:
				if err := al.writeEvent(event); err != nil {
					al.log.Warn("failed to write audit event", zap.Error(err))
				}
			case <-al.ctx.Done():
				for len(al.eventQueue) > 0 {
					al.writeEvent(<-al.eventQueue)
				}
				return
			}
		}
	}()
}

// QueryLogs queries audit logs with filters
func (al *Logger) QueryLogs(filters QueryFilters) ([]*Event, error) {
	if al.db == nil {
		return nil, fmt.Errorf("audit log has no database")
	}

	query := `
        SELECT id, timestamp, level, action, resource, success,
               error_msg, metadata, booking_id, idempotency_key
        FROM audit_log
        WHERE 1=1
    `

	args := []interface{}{}

	if filters.StartTime != nil {
		query += " AND timestamp >= ?"
		args = append(args, filters.StartTime)
	}

	if filters.EndTime != nil {
		query += " AND timestamp <= ?"
		args = append(args, filters.EndTime)
	}

	if filters.Action != "" {
		query += " AND action = ?"
		args = append(args, filters.Action)
	}

	if filters.Level != "" {
		query += " AND level = ?"
		args = append(args, filters.Level)
	}

	query += " ORDER BY timestamp DESC LIMIT ?"
	if filters.Limit <= 0 {
		filters.Limit = 100
	}
	args = append(args, filters.Limit)

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var errorMsg, metadata, key sql.NullString
		var bookingID sql.NullInt64
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&event.Level,
			&event.Action,
			&event.Resource,
			&event.Success,
			&errorMsg,
			&metadata,
			&bookingID,
			&key,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		event.ErrorMsg = errorMsg.String
		event.Metadata = metadata.String
		event.IdempotencyKey = key.String
		if bookingID.Valid {
			id := bookingID.Int64
			event.BookingID = &id
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// Close flushes pending events and closes the audit file
func (al *Logger) Close() error {
	var err error
	al.closeOnce.Do(func() {
		al.cancel()
		al.wg.Wait()
		err = al.logFile.Close()
	})
	return err
}
