package integration

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/adrecon/backend/internal/domain/workflow"
)

// ---------------------------------------------------------------------------
// ProviderCode Tests
// ---------------------------------------------------------------------------

func TestProviderCode_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		code     ProviderCode
		expected bool
	}{
		{"Meta valid", ProviderMeta, true},
		{"Pancake valid", ProviderPancake, true},
		{"Invalid code", ProviderCode("TIKTOK"), false},
		{"Empty code", ProviderCode(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.IsValid())
		})
	}
}

func TestProviderCode_Source(t *testing.T) {
	assert.Equal(t, workflow.SourceAds, ProviderMeta.Source())
	assert.Equal(t, workflow.SourcePOS, ProviderPancake.Source())
	assert.Equal(t, "Meta Ads", ProviderMeta.DisplayName())
	assert.Equal(t, "UNKNOWN", ProviderCode("UNKNOWN").DisplayName())
}

// ---------------------------------------------------------------------------
// Entity Tests
// ---------------------------------------------------------------------------

func TestAdAccount_Multiplier(t *testing.T) {
	acc := &AdAccount{ID: uuid.New()}
	assert.True(t, acc.Multiplier().Equal(decimal.NewFromInt(1)))

	acc.CurrencyMultiplier = decimal.NewFromInt(25000)
	assert.True(t, acc.Multiplier().Equal(decimal.NewFromInt(25000)))
}

func TestEntityInterface(t *testing.T) {
	acc := &AdAccount{ID: uuid.New(), Provider: ProviderMeta, CredentialRef: "cred-1"}
	shop := &Shop{ID: uuid.New(), Provider: ProviderPancake, CredentialRef: "cred-2"}

	for _, e := range []Entity{acc, shop} {
		assert.NotEqual(t, uuid.Nil, e.EntityID())
		assert.True(t, e.EntityProvider().IsValid())
		assert.NotEmpty(t, e.EntityCredentialRef())
	}
}

// ---------------------------------------------------------------------------
// OrderBucket / FetchError Tests
// ---------------------------------------------------------------------------

func TestOrderBucket_IsValid(t *testing.T) {
	for _, b := range AllBuckets {
		assert.True(t, b.IsValid(), b)
	}
	assert.False(t, OrderBucket("lost").IsValid())
	assert.Len(t, AllBuckets, 8)
}

func TestFetchError(t *testing.T) {
	err := &FetchError{
		Provider:   ProviderPancake,
		EntityID:   "shop-1",
		Date:       "2024-03-01",
		StatusCode: 503,
		Attempts:   4,
		Retryable:  true,
		Err:        ErrProviderUnavailable,
	}

	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "4 attempt(s)")
	assert.True(t, errors.Is(err, ErrProviderUnavailable))

	var fe *FetchError
	wrapped := errors.Join(errors.New("outer"), err)
	assert.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, 503, fe.StatusCode)
}

func TestIsRetryableStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
		{200, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, IsRetryableStatus(tt.status), tt.status)
	}
}
