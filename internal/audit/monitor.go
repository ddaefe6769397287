package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/logging"
)

const forcedLogoutThreshold = 3

type Monitor struct {
	logger *Logger
	log    *zap.Logger
	window time.Duration
}

// NewMonitor creates a monitor over the audit trail
func NewMonitor(logger *Logger, log *zap.Logger) *Monitor {
	return &Monitor{
		logger: logger,
		log:    logging.OrNop(log),
		window: 5 * time.Minute,
	}
}

// DetectForcedLogouts flags repeated 401-driven logouts inside the window,
// which usually means a token is being rejected in a loop.
func (m *Monitor) DetectForcedLogouts() (int, error) {
	now := time.Now()
	since := now.Add(-m.window)

	events, err := m.logger.QueryLogs(QueryFilters{
		StartTime: &since,
		EndTime:   &now,
		Action:    ActionForcedLogout,
		Limit:     1000,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query audit logs: %w", err)
	}

	if len(events) >= forcedLogoutThreshold {
		m.log.Warn("repeated forced logouts",
			zap.Int("count", len(events)),
			zap.Duration("window", m.window))
	}

	return len(events), nil
}

// DetectCompensationFailures reports bookings whose compensating delete
// failed inside the window. Each of them may be an unpaid booking left on
// the server.
func (m *Monitor) DetectCompensationFailures() ([]int64, error) {
	now := time.Now()
	since := now.Add(-m.window)

	events, err := m.logger.QueryLogs(QueryFilters{
		StartTime: &since,
		EndTime:   &now,
		Action:    ActionCompensationFailed,
		Limit:     1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	var ids []int64
	for _, event := range events {
		if event.BookingID == nil {
			continue
		}
		ids = append(ids, *event.BookingID)
		m.log.Error("unpaid booking may be left on the server",
			zap.Int64("booking_id", *event.BookingID),
			zap.String("idempotency_key", event.IdempotencyKey))
	}

	return ids, nil
}

// DetectSuspiciousActivity runs all checks
func (m *Monitor) DetectSuspiciousActivity() error {
	if _, err := m.DetectForcedLogouts(); err != nil {
		m.log.Warn("forced logout check failed", zap.Error(err))
	}

	if _, err := m.DetectCompensationFailures(); err != nil {
		m.log.Warn("compensation check failed", zap.Error(err))
	}

	return nil
}

// Run repeats DetectSuspiciousActivity every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DetectSuspiciousActivity()
		}
	}
}
