package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/logging"
)

const (
	defaultReconcileBackoff = time.Minute
	reconcileBatchSize      = 20
)

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Claimed     int
	Compensated int
	Failed      int
}

// Reconciler retries compensating deletes recorded as failed in the ledger.
type Reconciler struct {
	compensator *compensator
	ledger      Ledger
	ready       func() bool
	backoff     time.Duration
	log         *zap.Logger
}

// NewReconciler creates a reconciler. ready, when set, is consulted before
// each pass so that nothing is sent while logged out.
func NewReconciler(client *api.Client, ledger Ledger, auditLogger audit.Recorder, ready func() bool, log *zap.Logger) *Reconciler {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	log = logging.OrNop(log).Named("reconciler")
	return &Reconciler{
		compensator: &compensator{api: client, ledger: ledger, audit: auditLogger, log: log},
		ledger:      ledger,
		ready:       ready,
		backoff:     defaultReconcileBackoff,
		log:         log,
	}
}

// ReconcileOnce claims due compensation_failed attempts and retries their
// deletes.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	if r.ledger == nil || (r.ready != nil && !r.ready()) {
		return report, nil
	}

	attempts, err := r.ledger.ClaimCompensations(ctx, r.backoff, reconcileBatchSize)
	if err != nil {
		return report, err
	}
	report.Claimed = len(attempts)

	for _, attempt := range attempts {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if attempt.BookingID == nil {
			continue
		}
		if r.compensator.compensate(ctx, attempt.IdempotencyKey, *attempt.BookingID) {
			report.Compensated++
		} else {
			report.Failed++
		}
	}

	if report.Claimed > 0 {
		r.log.Info("reconciliation pass finished",
			zap.Int("claimed", report.Claimed),
			zap.Int("compensated", report.Compensated),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("reconciliation pass failed", zap.Error(err))
			}
		}
	}
}
