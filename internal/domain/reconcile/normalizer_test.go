package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAdID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// rule 1
		{"pure numeric id unchanged", "120210000111222333", "120210000111222333"},
		{"short numeric id unchanged", "42", "42"},
		{"numeric id with surrounding space", "  120210000111222333\t", "120210000111222333"},
		{"full-width digits folded", "１２３４５６７８９", "123456789"},

		// rule 2
		{"ad_id param with long id", "ad_id=12345678901", "12345678901"},
		{"embedded run in utm", "camp_ad_id=120210000111222333_v2", "120210000111222333"},
		{"longest run wins", "x12345678y1234567890z", "1234567890"},
		{"tie broken by first occurrence", "a11111111b22222222", "11111111"},
		{"run of exactly eight", "utm-87654321", "87654321"},
		{"url with long id", "https://shop.example/p?utm_content=ad_id%3D998877665544", "998877665544"},

		// rule 3
		{"short ad_id param stripped", "?utm=fb&ad_id=12-34a", "1234"},
		{"suffixed key falls back to raw scan", "camp_ad_id=77x1&foo=bar", "771"},
		{"ad_id without digits falls through", "ad_id=abc", "ad_id=abc"},

		// rule 4
		{"no digits returns trimmed", "  no-numbers-here ", "no-numbers-here"},
		{"short run returns trimmed", "promo-1234567", "promo-1234567"},

		// empty
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAdID(tt.input))
		})
	}
}

func TestNormalizeAdID_Deterministic(t *testing.T) {
	inputs := []string{"a11111111b22222222", "camp_ad_id=120210000111222333_v2", "free text"}
	for _, in := range inputs {
		first := NormalizeAdID(in)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, NormalizeAdID(in))
		}
	}
}

func TestNormalizeAdID_Idempotent(t *testing.T) {
	inputs := []string{"ad_id=12345678901", "x12345678y1234567890z", "?ad_id=12-34a", "hello"}
	for _, in := range inputs {
		once := NormalizeAdID(in)
		assert.Equal(t, once, NormalizeAdID(once), in)
	}
}
