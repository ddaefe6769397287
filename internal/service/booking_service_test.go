package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/pkg/errors"
)

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"message":"ok","data":{"booking_id":42}}`),
		paymentPath: reply(http.StatusCreated, `{"success":true,"message":"paid"}`),
	})

	result, err := f.booking.CreateBooking(context.Background(), validRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, int64(42), result.BookingID)
	assert.JSONEq(t, `{"booking_id":42}`, string(result.Data))
	assert.Equal(t, []string{bookingPath, paymentPath}, f.server.paths())

	payment := f.server.calls[1]
	assert.Equal(t, "4111111111111111", payment.Body["card_number"])
	assert.Equal(t, "uzcard", payment.Body["card_type"])
	assert.Equal(t, "12/27", payment.Body["card_expire"])
	assert.Equal(t, float64(42), payment.Body["booking"])

	assert.NotEmpty(t, result.IdempotencyKey)
	assert.Equal(t, result.IdempotencyKey, f.server.calls[0].Key)
	assert.Equal(t, result.IdempotencyKey, payment.Key)
	assert.Equal(t, models.AttemptPaid, f.ledger.status(result.IdempotencyKey))
	assert.JSONEq(t, `{"booking_id":42}`, string(f.ledger.get(result.IdempotencyKey).BookingData))
}

func TestCreateBooking_RejectedSendsNoPayment(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusOK, `{"success":false,"message":"Car is not available for these dates"}`),
	})

	result, err := f.booking.CreateBooking(context.Background(), validRequest())

	assert.ErrorIs(t, err, errors.ErrBookingRejected)
	assert.False(t, result.Success)
	assert.Equal(t, "Car is not available for these dates", result.Message)
	assert.Equal(t, []string{bookingPath}, f.server.paths())
	assert.Equal(t, models.AttemptRejected, f.ledger.status(result.IdempotencyKey))
}

func TestCreateBooking_PaymentDeclinedCompensates(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"data":{"booking_id":42}}`),
		paymentPath: reply(http.StatusOK, `{"success":false,"message":"card declined"}`),
		deletePath:  reply(http.StatusNoContent, ``),
	})

	result, err := f.booking.CreateBooking(context.Background(), validRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPaymentRejected)
	assert.False(t, result.Success)
	assert.Equal(t, "card declined", result.Message)
	assert.Equal(t, []string{bookingPath, paymentPath, deletePath}, f.server.paths())
	assert.Equal(t, models.AttemptCompensated, f.ledger.status(result.IdempotencyKey))
}

func TestCreateBooking_CompensationFailureThenReconcile(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"data":{"booking_id":42}}`),
		paymentPath: reply(http.StatusPaymentRequired, `{"message":"card declined"}`),
		deletePath:  reply(http.StatusInternalServerError, `{"detail":"boom"}`),
	})

	result, err := f.booking.CreateBooking(context.Background(), validRequest())

	assert.ErrorIs(t, err, errors.ErrPaymentRejected, "the payment error is returned, not the delete error")
	assert.Equal(t, "card declined", result.Message)
	assert.Equal(t, models.AttemptCompensationFailed, f.ledger.status(result.IdempotencyKey))

	// The booking disappears server-side; the reconciler treats 404 as done.
	delete(f.server.handlers, deletePath)

	reconciler := NewReconciler(f.client, f.ledger, nil, func() bool { return f.session.Snapshot().Authenticated() }, nil)
	reconciler.backoff = 0

	report, err := reconciler.ReconcileOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Claimed: 1, Compensated: 1}, report)
	assert.Equal(t, models.AttemptCompensated, f.ledger.status(result.IdempotencyKey))
}

func TestCreateBooking_ValidationBeforeNetwork(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		mutate func(r *models.BookingRequest)
		want   error
	}{
		{"phone", func(r *models.BookingRequest) { r.PhoneNumber = "12345" }, errors.ErrInvalidPhone},
		{"dates", func(r *models.BookingRequest) { r.EndDate = "2025-02-01" }, errors.ErrInvalidDateRange},
		{"card", func(r *models.BookingRequest) { r.PaymentDetails.CardNumber = "4111" }, errors.ErrInvalidCardNumber},
		{"expiry", func(r *models.BookingRequest) { r.PaymentDetails.ExpiryDate = "1227" }, errors.ErrInvalidCardExpiry},
		{"cvv", func(r *models.BookingRequest) { r.PaymentDetails.CVV = "12" }, errors.ErrInvalidCVV},
		{"holder", func(r *models.BookingRequest) { r.PaymentDetails.CardHolderName = "" }, errors.ErrMissingCardHolder},
		{"car", func(r *models.BookingRequest) { r.CarID = 0 }, errors.ErrInvalidBookingData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			result, err := f.booking.CreateBooking(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, result.Success)
		})
	}
	assert.Empty(t, f.server.paths())
}

func TestCreateBooking_IdempotencyReplay(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bookingID := int64(42)
	f.ledger.rows["paid-key"] = &models.BookingAttempt{
		IdempotencyKey: "paid-key",
		Status:         models.AttemptPaid,
		BookingID:      &bookingID,
		BookingData:    json.RawMessage(`{"booking_id":42,"total_price":"1050000.00"}`),
	}
	f.ledger.rows["busy-key"] = &models.BookingAttempt{IdempotencyKey: "busy-key", Status: models.AttemptBooked, UpdatedAt: time.Now()}

	req := validRequest()
	req.IdempotencyKey = "paid-key"
	result, err := f.booking.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(42), result.BookingID)
	assert.JSONEq(t, `{"booking_id":42,"total_price":"1050000.00"}`, string(result.Data))

	req = validRequest()
	req.IdempotencyKey = "busy-key"
	_, err = f.booking.CreateBooking(ctx, req)
	assert.ErrorIs(t, err, errors.ErrDuplicateSubmission)

	assert.Empty(t, f.server.paths())
}

func TestCreateBooking_UnauthorizedEndsSession(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusUnauthorized, `{"detail":"Token expired"}`),
	})

	result, err := f.booking.CreateBooking(context.Background(), validRequest())

	assert.True(t, errors.IsAuthFailure(err))
	assert.Equal(t, "Token expired", result.Message)
	assert.False(t, f.session.Snapshot().Authenticated())
}

func TestCreateBooking_MissingBookingID(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"data":{}}`),
	})

	_, err := f.booking.CreateBooking(context.Background(), validRequest())
	assert.ErrorIs(t, err, errors.ErrMalformedResponse)
	assert.Equal(t, []string{bookingPath}, f.server.paths())
}

func TestCreateBooking_RetryWaitsForCancellation(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"data":{"booking_id":42}}`),
		paymentPath: reply(http.StatusOK, `{"success":false,"message":"card declined"}`),
		deletePath:  reply(http.StatusInternalServerError, `{"detail":"boom"}`),
	})
	ctx := context.Background()

	req := validRequest()
	req.IdempotencyKey = "retry-key"
	_, err := f.booking.CreateBooking(ctx, req)
	require.ErrorIs(t, err, errors.ErrPaymentRejected)
	require.Equal(t, models.AttemptCompensationFailed, f.ledger.status("retry-key"))

	// Same key again while booking 42 still exists server-side.
	req = validRequest()
	req.IdempotencyKey = "retry-key"
	result, err := f.booking.CreateBooking(ctx, req)

	assert.ErrorIs(t, err, errors.ErrCancellationPending)
	assert.False(t, result.Success)
	assert.Equal(t, int64(42), result.BookingID)
	assert.Equal(t, []string{bookingPath, paymentPath, deletePath}, f.server.paths(), "no second booking is sent")

	row := f.ledger.get("retry-key")
	assert.Equal(t, models.AttemptCompensationFailed, row.Status)
	require.NotNil(t, row.BookingID)
	assert.Equal(t, int64(42), *row.BookingID)

	// Once the reconciler has deleted booking 42 the key runs again.
	f.server.mu.Lock()
	f.server.handlers[deletePath] = reply(http.StatusNoContent, ``)
	f.server.handlers[paymentPath] = reply(http.StatusCreated, `{"success":true}`)
	f.server.mu.Unlock()

	reconciler := NewReconciler(f.client, f.ledger, nil, func() bool { return true }, nil)
	reconciler.backoff = 0
	report, err := reconciler.ReconcileOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Compensated)

	req = validRequest()
	req.IdempotencyKey = "retry-key"
	result, err = f.booking.CreateBooking(ctx, req)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.AttemptPaid, f.ledger.status("retry-key"))
}

func TestCreateBooking_UnrecordedBookingIsNotPaid(t *testing.T) {
	f := newFixture(t, map[string]func(http.ResponseWriter){
		bookingPath: reply(http.StatusCreated, `{"success":true,"data":{"booking_id":42}}`),
		paymentPath: reply(http.StatusCreated, `{"success":true}`),
		deletePath:  reply(http.StatusNoContent, ``),
	})
	f.ledger.markErr = fmt.Errorf("disk I/O error")

	req := validRequest()
	req.IdempotencyKey = "mark-key"
	result, err := f.booking.CreateBooking(context.Background(), req)

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Could not record the booking, it was cancelled before payment", result.Message)
	assert.Equal(t, []string{bookingPath, deletePath}, f.server.paths())
	assert.Equal(t, models.AttemptRejected, f.ledger.status("mark-key"), "the key stays usable")
}
