package audit

import "time"

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// Actions recorded by the session manager and the booking saga.
const (
	ActionLogin                 = "SESSION_LOGIN"
	ActionLogout                = "SESSION_LOGOUT"
	ActionForcedLogout          = "SESSION_FORCED_LOGOUT"
	ActionBookingCreated        = "BOOKING_CREATED"
	ActionBookingRejected       = "BOOKING_REJECTED"
	ActionBookingPaid           = "BOOKING_PAID"
	ActionPaymentFailed         = "PAYMENT_FAILED"
	ActionCompensationOK        = "COMPENSATION_SUCCEEDED"
	ActionCompensationFailed    = "COMPENSATION_FAILED"
	ActionDuplicateSubmission   = "BOOKING_DUPLICATE_SUBMISSION"
	ActionSubmissionRateLimited = "BOOKING_RATE_LIMITED"
)

type Event struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Level          LogLevel  `json:"level"`
	Action         string    `json:"action"`
	Resource       string    `json:"resource"`
	Success        bool      `json:"success"`
	ErrorMsg       string    `json:"error_msg,omitempty"`
	Metadata       string    `json:"metadata,omitempty"`
	BookingID      *int64    `json:"booking_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

type QueryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
	Action    string
	Level     LogLevel
	Limit     int
}

// Recorder accepts audit events. *Logger implements it.
type Recorder interface {
	Log(event *Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(*Event) error { return nil }
