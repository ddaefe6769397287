package service

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// compensator deletes bookings whose payment failed and records the outcome.
type compensator struct {
	api    *api.Client
	ledger Ledger
	audit  audit.Recorder
	log    *zap.Logger
}

// compensate deletes bookingID. A 404 means the booking is already gone and
// counts as success. It reports whether the booking is gone.
func (c *compensator) compensate(ctx context.Context, key string, bookingID int64) bool {
	if err := c.delete(ctx, bookingID); err != nil {
		c.log.Error("compensating delete failed, booking may be left unpaid",
			zap.Int64("booking_id", bookingID),
			zap.String("key", key),
			zap.Error(err))
		setLedgerStatus(ctx, c.ledger, c.log, key, models.AttemptCompensationFailed, err.Error())
		recordEvent(c.audit, c.log, audit.LevelError, audit.ActionCompensationFailed, key, &bookingID, false, err.Error())
		return false
	}

	c.log.Info("booking compensated", zap.Int64("booking_id", bookingID), zap.String("key", key))
	setLedgerStatus(ctx, c.ledger, c.log, key, models.AttemptCompensated, "")
	recordEvent(c.audit, c.log, audit.LevelInfo, audit.ActionCompensationOK, key, &bookingID, true, "")
	return true
}

// discard deletes a booking the ledger could not record. The outcome goes to
// the audit trail only. It reports whether the booking is gone.
func (c *compensator) discard(ctx context.Context, key string, bookingID int64) bool {
	if err := c.delete(ctx, bookingID); err != nil {
		c.log.Error("failed to delete unrecorded booking",
			zap.Int64("booking_id", bookingID),
			zap.String("key", key),
			zap.Error(err))
		recordEvent(c.audit, c.log, audit.LevelError, audit.ActionCompensationFailed, key, &bookingID, false, err.Error())
		return false
	}
	recordEvent(c.audit, c.log, audit.LevelInfo, audit.ActionCompensationOK, key, &bookingID, true, "")
	return true
}

func (c *compensator) delete(ctx context.Context, bookingID int64) error {
	err := c.api.DeleteBooking(ctx, bookingID)
	if err != nil && errors.StatusCode(err) != http.StatusNotFound {
		return err
	}
	return nil
}
