package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

func TestNormalizeCardNumber(t *testing.T) {
	assert.Equal(t, "4111111111111111", NormalizeCardNumber("4111 1111 1111 1111"))
	assert.Equal(t, "4111111111111111", NormalizeCardNumber("4111-1111-1111-1111"))
	assert.Equal(t, "", NormalizeCardNumber(" - "))
}

func TestValidatePhone(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidatePhone("+998901234567"))
	assert.NoError(t, v.ValidatePhone("998901234567"))
	assert.ErrorIs(t, v.ValidatePhone("+99890123456"), errors.ErrInvalidPhone)
	assert.ErrorIs(t, v.ValidatePhone("+7901234567"), errors.ErrInvalidPhone)
	assert.ErrorIs(t, v.ValidatePhone(""), errors.ErrInvalidPhone)
}

func TestValidateCard(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateCardNumber("8600 1234 5678 9012"))
	assert.ErrorIs(t, v.ValidateCardNumber("8600 1234"), errors.ErrInvalidCardNumber)

	assert.NoError(t, v.ValidateCardExpiry("09/27"))
	assert.ErrorIs(t, v.ValidateCardExpiry("13/27"), errors.ErrInvalidCardExpiry)
	assert.ErrorIs(t, v.ValidateCardExpiry("0927"), errors.ErrInvalidCardExpiry)

	assert.NoError(t, v.ValidateCVV("123"))
	assert.ErrorIs(t, v.ValidateCVV("12a"), errors.ErrInvalidCVV)
	assert.ErrorIs(t, v.ValidateCVV("1234"), errors.ErrInvalidCVV)

	assert.ErrorIs(t, v.ValidateCardHolder("   "), errors.ErrMissingCardHolder)
}

func TestParseDateRange(t *testing.T) {
	v := New()

	start, end, err := v.ParseDateRange("2025-03-01", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, start, end)

	_, _, err = v.ParseDateRange("2025-03-05", "2025-03-01")
	assert.ErrorIs(t, err, errors.ErrInvalidDateRange)

	_, _, err = v.ParseDateRange("01/03/2025", "2025-03-01")
	assert.ErrorIs(t, err, errors.ErrInvalidDateRange)
}

func TestValidateRegistrationFields(t *testing.T) {
	v := New()

	assert.NoError(t, v.ValidateUsername("driver_01"))
	assert.ErrorIs(t, v.ValidateUsername("ab"), errors.ErrInvalidUsername)
	assert.ErrorIs(t, v.ValidateUsername("has space"), errors.ErrInvalidUsername)

	assert.NoError(t, v.ValidateEmail(""))
	assert.NoError(t, v.ValidateEmail("a@b.uz"))
	assert.ErrorIs(t, v.ValidateEmail("not-an-email"), errors.ErrInvalidEmail)

	assert.NoError(t, v.ValidatePassword("secret123"))
	assert.ErrorIs(t, v.ValidatePassword("short1"), errors.ErrWeakPassword)
	assert.ErrorIs(t, v.ValidatePassword("lettersonly"), errors.ErrWeakPassword)
}
