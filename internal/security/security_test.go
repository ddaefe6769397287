package security

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

func newTestEncryptor(t *testing.T) *FieldEncryptor {
	t.Helper()
	fe, err := NewFieldEncryptor(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return fe
}

func TestFieldEncryptor_RoundTrip(t *testing.T) {
	fe := newTestEncryptor(t)

	sealed, err := fe.Encrypt("abc123", "userToken")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "abc123")

	plain, err := fe.Decrypt(sealed, "userToken")
	require.NoError(t, err)
	assert.Equal(t, "abc123", plain)
}

func TestFieldEncryptor_LabelMismatch(t *testing.T) {
	fe := newTestEncryptor(t)

	sealed, err := fe.Encrypt("abc123", "userToken")
	require.NoError(t, err)

	_, err = fe.Decrypt(sealed, "userData")
	assert.ErrorIs(t, err, errors.ErrDecryptionFailed)
}

func TestFieldEncryptor_BadInput(t *testing.T) {
	fe := newTestEncryptor(t)

	_, err := fe.Decrypt("%%%", "k")
	assert.ErrorIs(t, err, errors.ErrDecryptionFailed)

	_, err = fe.DecryptBytes([]byte{1, 2}, "k")
	assert.ErrorIs(t, err, errors.ErrDecryptionFailed)

	_, err = NewFieldEncryptor([]byte("short"))
	assert.ErrorIs(t, err, errors.ErrInvalidKey)
}

func TestKeyManager(t *testing.T) {
	secret := strings.Repeat("s", 32)

	km1, err := NewKeyManager(secret, secret)
	require.NoError(t, err)
	km2, err := NewKeyManager(secret, secret)
	require.NoError(t, err)

	assert.Len(t, km1.AppKey(), 32)
	assert.Equal(t, km1.AppKey(), km2.AppKey(), "derivation is deterministic")
	assert.Len(t, km1.StoreKey(), 64)
	assert.NotEqual(t, km1.StoreKey(), hex.EncodeToString(km1.AppKey()), "purposes are separated")

	_, err = NewKeyManager("", secret)
	assert.Error(t, err)
}
