package models

import (
	"encoding/json"
	"time"
)

// PaymentDetails is the card data typed into the payment form.
type PaymentDetails struct {
	CardNumber     string `json:"card_number"`
	ExpiryDate     string `json:"expiry_date"`
	CVV            string `json:"cvv"`
	CardHolderName string `json:"card_holder_name"`
}

// BookingRequest is built from form state and sent once.
//
// IdempotencyKey identifies one booking attempt. Reusing the key of a
// failed attempt is the only safe way to retry; a new key is a new booking.
type BookingRequest struct {
	CarID          int64          `json:"car_id"`
	StartDate      string         `json:"start_date"`
	EndDate        string         `json:"end_date"`
	PhoneNumber    string         `json:"phone_number"`
	Note           string         `json:"note,omitempty"`
	PaymentDetails PaymentDetails `json:"payment_details"`
	IdempotencyKey string         `json:"-"`
}

// CreateBookingPayload is the wire body of the booking-creation call.
type CreateBookingPayload struct {
	Car         int64  `json:"car"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	PhoneNumber string `json:"phone_number"`
	Note        string `json:"note"`
}

// PaymentRequest references the booking created in the previous step.
type PaymentRequest struct {
	Booking    int64  `json:"booking"`
	CardType   string `json:"card_type"`
	CardNumber string `json:"card_number"`
	CardExpire string `json:"card_expire"`
}

// Envelope is the {success, message, data} shape used by the booking,
// payment and profile endpoints.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BookingCreated is the data part of a successful booking response.
type BookingCreated struct {
	BookingID int64 `json:"booking_id"`
}

// BookingResult is what a completed booking+payment returns to the caller.
type BookingResult struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	BookingID      int64           `json:"booking_id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type Booking struct {
	ID          int64   `json:"id"`
	Car         int64   `json:"car"`
	CarName     string  `json:"car_name"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
	PhoneNumber string  `json:"phone_number"`
	Note        string  `json:"note"`
	Status      string  `json:"status"`
	TotalPrice  Decimal `json:"total_price"`
	CreatedAt   string  `json:"created_at"`
}

type Contract struct {
	ID        int64  `json:"id"`
	BookingID int64  `json:"booking_id"`
	CreatedAt string `json:"created_at"`
}

// AttemptStatus tracks a booking attempt through the saga.
type AttemptStatus string

const (
	AttemptPending            AttemptStatus = "pending"
	AttemptBooked             AttemptStatus = "booked"
	AttemptPaid               AttemptStatus = "paid"
	AttemptRejected           AttemptStatus = "rejected"
	AttemptPaymentFailed      AttemptStatus = "payment_failed"
	AttemptCompensated        AttemptStatus = "compensated"
	AttemptCompensationFailed AttemptStatus = "compensation_failed"
)

// BookingAttempt is a row of the local booking ledger.
type BookingAttempt struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	CarID          int64  `json:"car_id"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	BookingID      *int64 `json:"booking_id,omitempty"`
	// BookingData is the data object of the booking response, replayed
	// when the key is retried after payment.
	BookingData json.RawMessage `json:"booking_data,omitempty"`
	Status      AttemptStatus   `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptPending:            {AttemptBooked, AttemptRejected},
	AttemptBooked:             {AttemptPaid, AttemptPaymentFailed, AttemptCompensated, AttemptCompensationFailed},
	AttemptPaymentFailed:      {AttemptCompensated, AttemptCompensationFailed},
	AttemptCompensationFailed: {AttemptCompensated, AttemptCompensationFailed},
}

// CanTransitionTo reports whether the ledger allows moving from s to next.
// paid, rejected and compensated are terminal.
func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reusable reports whether an attempt in this state may be run again under
// the same key. Only attempts that left nothing behind on the server qualify.
func (s AttemptStatus) Reusable() bool {
	return s == AttemptRejected || s == AttemptCompensated
}

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	return len(attemptTransitions[s]) == 0
}
