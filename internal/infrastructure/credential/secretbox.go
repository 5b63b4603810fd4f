// Package credential opens provider secrets stored sealed in integration_credentials.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrInvalidKey is returned when the configured secret key is not 32 bytes
var ErrInvalidKey = errors.New("credential: secret key must decode to 32 bytes")

// ParseKey decodes a hex or base64 encoded 32-byte key
func ParseKey(encoded string) (*[keySize]byte, error) {
	encoded = strings.TrimSpace(encoded)
	var raw []byte
	if b, err := hex.DecodeString(encoded); err == nil && len(b) == keySize {
		raw = b
	} else if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == keySize {
		raw = b
	} else {
		return nil, ErrInvalidKey
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

// Seal encrypts plaintext with a fresh random nonce, returning nonce||ciphertext
func Seal(key *[keySize]byte, plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key), nil
}

// Open reverses Seal
func Open(key *[keySize]byte, sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", integration.ErrInvalidCredential
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return "", integration.ErrInvalidCredential
	}
	return string(plain), nil
}

// SecretboxResolver implements integration.CredentialResolver
type SecretboxResolver struct {
	db     *gorm.DB
	key    *[keySize]byte
	logger *zap.Logger
}

// NewSecretboxResolver creates a resolver reading sealed credentials through db
func NewSecretboxResolver(db *gorm.DB, encodedKey string, logger *zap.Logger) (*SecretboxResolver, error) {
	key, err := ParseKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return &SecretboxResolver{db: db, key: key, logger: logger.Named("credential")}, nil
}

// Resolve loads and opens the credential behind ref
func (r *SecretboxResolver) Resolve(ctx context.Context, ref string) (*integration.Credentials, error) {
	if ref == "" {
		return nil, integration.ErrCredentialNotFound
	}
	var m models.CredentialModel
	if err := r.db.WithContext(ctx).First(&m, "ref = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	token, err := Open(r.key, m.SealedAccessToken)
	if err != nil {
		r.logger.Warn("access token cannot be opened", zap.String("ref", ref))
		return nil, err
	}
	apiKey, err := Open(r.key, m.SealedAPIKey)
	if err != nil {
		r.logger.Warn("api key cannot be opened", zap.String("ref", ref))
		return nil, err
	}
	return &integration.Credentials{AccessToken: token, APIKey: apiKey}, nil
}

// Store seals and upserts a credential; used by seeding and the integration suite
func (r *SecretboxResolver) Store(ctx context.Context, tenantID uuid.UUID, ref string, creds integration.Credentials) error {
	token, err := Seal(r.key, creds.AccessToken)
	if err != nil {
		return err
	}
	apiKey, err := Seal(r.key, creds.APIKey)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	m := models.CredentialModel{
		Ref:               ref,
		TenantID:          tenantID,
		SealedAccessToken: token,
		SealedAPIKey:      apiKey,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return r.db.WithContext(ctx).Save(&m).Error
}
