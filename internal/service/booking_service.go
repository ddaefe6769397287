package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/ratelimit"
	"github.com/amirk1998/car-rental-client/pkg/errors"
	"github.com/amirk1998/car-rental-client/pkg/validator"
)

const (
	DefaultCardType     = "uzcard"
	compensationTimeout = 30 * time.Second
	bookingSuccessMsg   = "Booking created successfully"
)

// Ledger records booking attempts by idempotency key.
// *repository.BookingAttemptRepository implements it.
type Ledger interface {
	Create(ctx context.Context, attempt *models.BookingAttempt) error
	GetByKey(ctx context.Context, key string) (*models.BookingAttempt, error)
	MarkBooked(ctx context.Context, key string, bookingID int64, data json.RawMessage) error
	UpdateStatus(ctx context.Context, key string, status models.AttemptStatus, lastErr string) error
	ClaimCompensations(ctx context.Context, backoff time.Duration, limit int) ([]*models.BookingAttempt, error)
}

type BookingService struct {
	api         *api.Client
	ledger      Ledger
	guard       *ratelimit.SubmissionGuard
	rateLimiter *ratelimit.RateLimiter
	validator   *validator.Validator
	compensator *compensator
	auditLogger audit.Recorder
	log         *zap.Logger
	cardType    string
}

// NewBookingService creates the booking service. ledger and rateLimiter may
// be nil; without a ledger retried idempotency keys are not recognised
// locally.
func NewBookingService(
	client *api.Client,
	ledger Ledger,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger audit.Recorder,
	log *zap.Logger,
	cardType string,
) *BookingService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if cardType == "" {
		cardType = DefaultCardType
	}
	log = logging.OrNop(log).Named("booking")

	return &BookingService{
		api:         client,
		ledger:      ledger,
		guard:       ratelimit.NewSubmissionGuard(),
		rateLimiter: rateLimiter,
		validator:   validator.New(),
		compensator: &compensator{api: client, ledger: ledger, audit: auditLogger, log: log},
		auditLogger: auditLogger,
		log:         log,
		cardType:    cardType,
	}
}

// CreateBooking creates the booking, pays for it, and deletes the booking
// again when the payment fails.
//
// It is not idempotent on its own: calling it twice books twice. A caller
// that retries must pass the same req.IdempotencyKey; a key already paid is
// answered from the ledger and a key still in flight is refused.
//
// On failure the returned result carries the message to show, next to the
// error. Compensation failures are recorded but never replace the payment
// error.
func (s *BookingService) CreateBooking(ctx context.Context, req *models.BookingRequest) (*models.BookingResult, error) {
	if err := s.validate(req); err != nil {
		return failed(errors.UserMessage(err), "", 0), err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	if result, done, err := s.replay(ctx, key); done {
		return result, err
	}

	release, err := s.guard.Acquire(fmt.Sprintf("car:%d", req.CarID))
	if err != nil {
		s.record(audit.LevelWarning, audit.ActionDuplicateSubmission, key, nil, false, err.Error())
		return failed(err.Error(), key, 0), err
	}
	defer release()

	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckLimit(ratelimit.CarKey(req.CarID)); err != nil {
			s.record(audit.LevelWarning, audit.ActionSubmissionRateLimited, key, nil, false, err.Error())
			return failed(errors.UserMessage(err), key, 0), err
		}
	}

	if s.ledger != nil {
		attempt := &models.BookingAttempt{
			IdempotencyKey: key,
			CarID:          req.CarID,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
		}
		if err := s.ledger.Create(ctx, attempt); err != nil {
			if errors.Is(err, errors.ErrDuplicateSubmission) {
				return failed(errors.ErrDuplicateSubmission.Error(), key, 0), err
			}
			return failed("Could not record the booking attempt", key, 0), fmt.Errorf("failed to record booking attempt: %w", err)
		}
	}

	// Step 1: booking.
	env, err := s.api.CreateBookingRecord(ctx, models.CreateBookingPayload{
		Car:         req.CarID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		PhoneNumber: req.PhoneNumber,
		Note:        req.Note,
	}, key)
	if err == nil && !env.Success {
		err = errors.NewAppError(errors.ErrRejected, env.Message, 0)
	}
	if err != nil {
		msg := messageOr(err, "Booking failed")
		s.setStatus(ctx, key, models.AttemptRejected, msg)
		s.record(audit.LevelWarning, audit.ActionBookingRejected, key, nil, false, msg)
		return failed(msg, key, 0), errors.NewAppError(wrapBoth(errors.ErrBookingRejected, err), msg, errors.StatusCode(err))
	}

	var created models.BookingCreated
	if err := json.Unmarshal(env.Data, &created); err != nil || created.BookingID == 0 {
		msg := "Booking response did not include a booking id"
		s.setStatus(ctx, key, models.AttemptRejected, msg)
		s.record(audit.LevelError, audit.ActionBookingRejected, key, nil, false, msg)
		return failed(msg, key, 0), fmt.Errorf("%w: %s", errors.ErrMalformedResponse, msg)
	}
	bookingID := created.BookingID

	s.record(audit.LevelInfo, audit.ActionBookingCreated, key, &bookingID, true, "")

	// A booking the ledger does not know about could not be compensated
	// later, so it is not paid for.
	if s.ledger != nil {
		if err := s.ledger.MarkBooked(ctx, key, bookingID, env.Data); err != nil {
			s.log.Error("failed to mark attempt booked", zap.String("key", key), zap.Error(err))
			msg := "Could not record the booking, it was cancelled before payment"

			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
			gone := s.compensator.discard(cctx, key, bookingID)
			cancel()

			// Only a deleted booking frees the key for another run.
			if gone {
				s.setStatus(ctx, key, models.AttemptRejected, msg)
			} else {
				msg = fmt.Sprintf("Could not record booking #%d and could not cancel it, please cancel it manually", bookingID)
			}
			return failed(msg, key, bookingID), errors.NewAppError(fmt.Errorf("failed to record booking %d: %w", bookingID, err), msg, 0)
		}
	}

	// Step 2: payment, only ever for a booking that exists.
	penv, err := s.api.CreatePayment(ctx, models.PaymentRequest{
		Booking:    bookingID,
		CardType:   s.cardType,
		CardNumber: validator.NormalizeCardNumber(req.PaymentDetails.CardNumber),
		CardExpire: req.PaymentDetails.ExpiryDate,
	}, key)
	if err == nil && !penv.Success {
		err = errors.NewAppError(errors.ErrRejected, penv.Message, 0)
	}
	if err != nil {
		msg := messageOr(err, "Payment failed")
		s.setStatus(ctx, key, models.AttemptPaymentFailed, msg)
		s.record(audit.LevelWarning, audit.ActionPaymentFailed, key, &bookingID, false, msg)

		// Step 3: compensation, before the failure is returned.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		s.compensator.compensate(cctx, key, bookingID)
		cancel()

		return failed(msg, key, bookingID), errors.NewAppError(wrapBoth(errors.ErrPaymentRejected, err), msg, errors.StatusCode(err))
	}

	s.setStatus(ctx, key, models.AttemptPaid, "")
	s.record(audit.LevelInfo, audit.ActionBookingPaid, key, &bookingID, true, "")
	s.log.Info("booking paid", zap.Int64("booking_id", bookingID), zap.String("key", key))

	return &models.BookingResult{
		Success:        true,
		Message:        bookingSuccessMsg,
		BookingID:      bookingID,
		IdempotencyKey: key,
		Data:           env.Data,
	}, nil
}

// replay answers a retried key from the ledger. done is false when the
// attempt has to run: the key is new, or its attempt left nothing behind.
func (s *BookingService) replay(ctx context.Context, key string) (*models.BookingResult, bool, error) {
	if s.ledger == nil {
		return nil, false, nil
	}

	attempt, err := s.ledger.GetByKey(ctx, key)
	if errors.Is(err, errors.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		s.log.Warn("ledger lookup failed", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}

	var bookingID int64
	if attempt.BookingID != nil {
		bookingID = *attempt.BookingID
	}

	switch {
	case attempt.Status == models.AttemptPaid:
		return &models.BookingResult{
			Success:        true,
			Message:        bookingSuccessMsg,
			BookingID:      bookingID,
			IdempotencyKey: key,
			Data:           attempt.BookingData,
		}, true, nil
	case attempt.Status.Reusable():
		return nil, false, nil
	case attempt.Status == models.AttemptPaymentFailed, attempt.Status == models.AttemptCompensationFailed:
		// Running again would book a second car while the first booking
		// still waits for the reconciler to delete it.
		msg := "The booking from this attempt is still being cancelled, please try again later"
		return failed(msg, key, bookingID), true, errors.NewAppError(errors.ErrCancellationPending, msg, 0)
	default:
		return failed(errors.ErrDuplicateSubmission.Error(), key, 0), true, errors.ErrDuplicateSubmission
	}
}

func (s *BookingService) validate(req *models.BookingRequest) error {
	if req.CarID <= 0 {
		return errors.NewAppError(errors.ErrInvalidBookingData, "Please select a car", 0)
	}

	req.PhoneNumber = s.validator.SanitizeString(req.PhoneNumber)
	req.Note = s.validator.SanitizeString(req.Note)
	req.PaymentDetails.CardHolderName = s.validator.SanitizeString(req.PaymentDetails.CardHolderName)
	req.PaymentDetails.ExpiryDate = s.validator.SanitizeString(req.PaymentDetails.ExpiryDate)

	if err := s.validator.ValidatePhone(req.PhoneNumber); err != nil {
		return err
	}
	if _, _, err := s.validator.ParseDateRange(req.StartDate, req.EndDate); err != nil {
		return err
	}
	if err := s.validator.ValidateNote(req.Note); err != nil {
		return err
	}

	p := req.PaymentDetails
	if err := s.validator.ValidateCardNumber(p.CardNumber); err != nil {
		return err
	}
	if err := s.validator.ValidateCardExpiry(p.ExpiryDate); err != nil {
		return err
	}
	if err := s.validator.ValidateCVV(p.CVV); err != nil {
		return err
	}
	return s.validator.ValidateCardHolder(p.CardHolderName)
}

// Bookings lists the user's bookings.
func (s *BookingService) Bookings(ctx context.Context) ([]models.Booking, error) {
	return s.api.ListBookings(ctx)
}

func (s *BookingService) setStatus(ctx context.Context, key string, status models.AttemptStatus, lastErr string) {
	setLedgerStatus(ctx, s.ledger, s.log, key, status, lastErr)
}

func (s *BookingService) record(level audit.LogLevel, action, key string, bookingID *int64, success bool, errMsg string) {
	recordEvent(s.auditLogger, s.log, level, action, key, bookingID, success, errMsg)
}

func failed(msg, key string, bookingID int64) *models.BookingResult {
	return &models.BookingResult{Success: false, Message: msg, IdempotencyKey: key, BookingID: bookingID}
}

// messageOr returns the server message carried by err, or fallback.
func messageOr(err error, fallback string) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	if errors.Is(err, errors.ErrNetwork) {
		return errors.ErrNetwork.Error()
	}
	return fallback
}

// wrapBoth keeps both the saga sentinel and the transport cause reachable
// through errors.Is.
func wrapBoth(sentinel, cause error) error {
	return fmt.Errorf("%w: %w", sentinel, cause)
}

func setLedgerStatus(ctx context.Context, ledger Ledger, log *zap.Logger, key string, status models.AttemptStatus, lastErr string) {
	if ledger == nil {
		return
	}
	if err := ledger.UpdateStatus(ctx, key, status, lastErr); err != nil {
		log.Error("failed to update booking attempt",
			zap.String("key", key),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func recordEvent(rec audit.Recorder, log *zap.Logger, level audit.LogLevel, action, key string, bookingID *int64, success bool, errMsg string) {
	event := &audit.Event{
		Level:          level,
		Action:         action,
		Resource:       "booking",
		Success:        success,
		ErrorMsg:       errMsg,
		BookingID:      bookingID,
		IdempotencyKey: key,
	}
	if err := rec.Log(event); err != nil {
		log.Warn("failed to record audit event", zap.String("action", action), zap.Error(err))
	}
}
