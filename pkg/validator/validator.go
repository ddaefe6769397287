package validator

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// DateLayout is the wire format of booking dates.
const DateLayout = "2006-01-02"

var (
	// Username: letters, digits and @.+-_ (the server's user model rules)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9@.+_-]{3,150}$`)

	// Email: basic email validation
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Uzbek mobile numbers, with or without the leading plus
	phoneRegex = regexp.MustCompile(`^\+?998[0-9]{9}$`)

	// Card expiry MM/YY
	expiryRegex = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)

	nonDigit = regexp.MustCompile(`\D`)
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateUsername checks if username is acceptable to the server
func (v *Validator) ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return errors.ErrInvalidUsername
	}
	return nil
}

// ValidateEmail checks if email format is valid. Empty is allowed because
// the email is optional at registration.
func (v *Validator) ValidateEmail(email string) error {
	if email == "" {
		return nil
	}

	if len(email) > 255 || !emailRegex.MatchString(email) {
		return errors.ErrInvalidEmail
	}

	return nil
}

// ValidatePassword checks password strength
func (v *Validator) ValidatePassword(password string) error {
	if len(password) < 8 || len(password) > 128 {
		return errors.ErrWeakPassword
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsLetter(char):
			hasLetter = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasLetter || !hasNumber {
		return errors.ErrWeakPassword
	}

	return nil
}

// ValidatePhone checks the contact number attached to a booking
func (v *Validator) ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return errors.ErrInvalidPhone
	}
	return nil
}

// NormalizeCardNumber strips everything but digits, so
// "4111 1111 1111 1111" becomes "4111111111111111".
func NormalizeCardNumber(number string) string {
	return nonDigit.ReplaceAllString(number, "")
}

// ValidateCardNumber checks the card number after normalization
func (v *Validator) ValidateCardNumber(number string) error {
	if len(NormalizeCardNumber(number)) != 16 {
		return errors.ErrInvalidCardNumber
	}
	return nil
}

// ValidateCardExpiry checks the MM/YY expiry field
func (v *Validator) ValidateCardExpiry(expiry string) error {
	if !expiryRegex.MatchString(expiry) {
		return errors.ErrInvalidCardExpiry
	}
	return nil
}

// ValidateCVV checks the three-digit security code
func (v *Validator) ValidateCVV(cvv string) error {
	if len(cvv) != 3 || NormalizeCardNumber(cvv) != cvv {
		return errors.ErrInvalidCVV
	}
	return nil
}

// ValidateCardHolder checks that a name was entered
func (v *Validator) ValidateCardHolder(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.ErrMissingCardHolder
	}
	return nil
}

// ParseDateRange parses both booking dates and checks that the end is not
// before the start. A same-day rental counts as one day.
func (v *Validator) ParseDateRange(start, end string) (time.Time, time.Time, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewAppError(errors.ErrInvalidDateRange, "start date must be YYYY-MM-DD", 0)
	}

	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, errors.NewAppError(errors.ErrInvalidDateRange, "end date must be YYYY-MM-DD", 0)
	}

	if e.Before(s) {
		return time.Time{}, time.Time{}, errors.ErrInvalidDateRange
	}

	return s, e, nil
}

// SanitizeString removes null bytes and surrounding whitespace
func (v *Validator) SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(input)
}

// ValidateNote validates the optional booking note
func (v *Validator) ValidateNote(note string) error {
	if len(note) > 1000 {
		return errors.NewAppError(errors.ErrInvalidInput, "note too long (max 1000 characters)", 0)
	}
	return nil
}
