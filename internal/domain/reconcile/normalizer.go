// Package reconcile holds the pure matching rules that join ad spend to POS orders.
package reconcile

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// minDigitRun is the shortest run of digits accepted as an embedded ad id
const minDigitRun = 8

const adIDParam = "ad_id"

// NormalizeAdID turns a free-text identifier into the canonical ad id used as the
// join key between ad spend and orders. It returns "" for empty input.
//
// Rules, first match wins:
//  1. the whole trimmed string is digits: returned unchanged
//  2. the longest run of 8+ digits, first occurrence on ties
//  3. an ad_id= query parameter, with non-digits stripped from its value
//  4. the trimmed input
func NormalizeAdID(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if s == "" {
		return ""
	}
	if isDigits(s) {
		return s
	}
	if run := longestDigitRun(s); run != "" {
		return run
	}
	if strings.Contains(s, adIDParam+"=") {
		if v := digitsOnly(adIDValue(s)); v != "" {
			return v
		}
	}
	return s
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func longestDigitRun(s string) string {
	best := ""
	start := -1
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] >= '0' && s[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			if run := s[start:i]; len(run) >= minDigitRun && len(run) > len(best) {
				best = run
			}
			start = -1
		}
	}
	return best
}

// adIDValue extracts the ad_id value, parsing the part after the last '?' as a query string.
// Keys that merely end in ad_id (camp_ad_id=) fall back to a raw scan.
func adIDValue(s string) string {
	q := s
	if i := strings.LastIndex(q, "?"); i >= 0 {
		q = q[i+1:]
	}
	if values, err := url.ParseQuery(q); err == nil {
		if v := values.Get(adIDParam); v != "" {
			return v
		}
	}
	i := strings.LastIndex(s, adIDParam+"=")
	v := s[i+len(adIDParam)+1:]
	if j := strings.IndexAny(v, "&#"); j >= 0 {
		v = v[:j]
	}
	return v
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
