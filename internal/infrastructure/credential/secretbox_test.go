package credential

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/adrecon/backend/internal/domain/integration"
	"github.com/adrecon/backend/internal/infrastructure/persistence/models"
)

var testKeyHex = strings.Repeat("ab", 32)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "hex", input: testKeyHex},
		{name: "base64", input: base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{name: "too short", input: "abcd", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, key)
		})
	}
}

func TestSealOpen(t *testing.T) {
	key, err := ParseKey(testKeyHex)
	require.NoError(t, err)

	sealed, err := Seal(key, "EAAB-token")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "EAAB-token")

	plain, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAB-token", plain)

	t.Run("tampered ciphertext is rejected", func(t *testing.T) {
		bad := append([]byte(nil), sealed...)
		bad[len(bad)-1] ^= 0xff
		_, err := Open(key, bad)
		assert.ErrorIs(t, err, integration.ErrInvalidCredential)
	})

	t.Run("wrong key is rejected", func(t *testing.T) {
		other, err := ParseKey(strings.Repeat("cd", 32))
		require.NoError(t, err)
		_, err = Open(other, sealed)
		assert.ErrorIs(t, err, integration.ErrInvalidCredential)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		sealed, err := Seal(key, "")
		require.NoError(t, err)
		plain, err := Open(key, sealed)
		require.NoError(t, err)
		assert.Empty(t, plain)
	})
}

func TestSecretboxResolver(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.CredentialModel{}))

	resolver, err := NewSecretboxResolver(db, testKeyHex, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, resolver.Store(ctx, uuid.New(), "meta-main", integration.Credentials{AccessToken: "tok"}))
	require.NoError(t, resolver.Store(ctx, uuid.New(), "pancake-main", integration.Credentials{APIKey: "key-1"}))

	t.Run("resolves stored credentials", func(t *testing.T) {
		creds, err := resolver.Resolve(ctx, "meta-main")
		require.NoError(t, err)
		assert.Equal(t, "tok", creds.AccessToken)
		assert.Empty(t, creds.APIKey)

		creds, err = resolver.Resolve(ctx, "pancake-main")
		require.NoError(t, err)
		assert.Equal(t, "key-1", creds.APIKey)
	})

	t.Run("unknown reference", func(t *testing.T) {
		_, err := resolver.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
		_, err = resolver.Resolve(ctx, "")
		assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
	})

	t.Run("rejects a bad key", func(t *testing.T) {
		_, err := NewSecretboxResolver(db, "short", zap.NewNop())
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}
