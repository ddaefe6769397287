package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommendations)
	argon2Time      = 3
	argon2Memory    = 64 * 1024 // 64 MB
	argon2Threads   = 2
	argon2KeyLength = 32
)

// KeyManager derives the store and application keys from the configured
// secrets. Derivation runs once at start-up.
type KeyManager struct {
	storeKey []byte
	appKey   []byte
}

// NewKeyManager derives 32-byte keys from the configured secrets
func NewKeyManager(storeSecret, appSecret string) (*KeyManager, error) {
	if storeSecret == "" || appSecret == "" {
		return nil, fmt.Errorf("both store and application secrets are required")
	}

	return &KeyManager{
		storeKey: deriveKey(storeSecret, "store"),
		appKey:   deriveKey(appSecret, "app"),
	}, nil
}

// StoreKey returns the SQLCipher key as hex, the form the driver's
// _pragma_key accepts without quoting issues.
func (km *KeyManager) StoreKey() string {
	return hex.EncodeToString(km.storeKey)
}

// AppKey returns the key used for field and archive encryption
func (km *KeyManager) AppKey() []byte {
	return km.appKey
}

// deriveKey stretches secret with Argon2id. The salt is fixed per purpose
// so the same secret yields the same key on every start.
func deriveKey(secret, purpose string) []byte {
	salt := sha256.Sum256([]byte("car-rental-client/" + purpose))
	return argon2.IDKey([]byte(secret), salt[:16], argon2Time, argon2Memory, argon2Threads, argon2KeyLength)
}
