package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/amirk1998/car-rental-client/pkg/errors"
)

// FieldEncryptor seals individual values with AES-256-GCM. Every call takes
// an associated-data label (for the store, the key name) so a ciphertext
// copied under another label fails to open.
type FieldEncryptor struct {
	gcm cipher.AEAD
}

// NewFieldEncryptor creates a new field encryptor with AES-256-GCM
func NewFieldEncryptor(key []byte) (*FieldEncryptor, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: key must be 32 bytes for AES-256", errors.ErrInvalidKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldEncryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext under label and returns base64 text suitable for
// a TEXT column.
func (fe *FieldEncryptor) Encrypt(plaintext, label string) (string, error) {
	sealed, err := fe.EncryptBytes([]byte(plaintext), label)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 text produced by Encrypt with the same label.
func (fe *FieldEncryptor) Decrypt(ciphertext, label string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: failed to decode ciphertext: %v", errors.ErrDecryptionFailed, err)
	}

	plaintext, err := fe.DecryptBytes(data, label)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptBytes seals plaintext; the nonce is prepended to the output.
func (fe *FieldEncryptor) EncryptBytes(plaintext []byte, label string) ([]byte, error) {
	nonce := make([]byte, fe.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", errors.ErrEncryptionFailed, err)
	}

	return fe.gcm.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

// DecryptBytes opens data produced by EncryptBytes.
func (fe *FieldEncryptor) DecryptBytes(data []byte, label string) ([]byte, error) {
	nonceSize := fe.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", errors.ErrDecryptionFailed)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]

	plaintext, err := fe.gcm.Open(nil, nonce, sealed, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecryptionFailed, err)
	}

	return plaintext, nil
}
