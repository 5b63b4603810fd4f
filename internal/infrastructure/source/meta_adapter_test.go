package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrecon/backend/internal/domain/integration"
)

type stubResolver struct {
	creds map[string]integration.Credentials
}

func (s *stubResolver) Resolve(_ context.Context, ref string) (*integration.Credentials, error) {
	c, ok := s.creds[ref]
	if !ok {
		return nil, integration.ErrCredentialNotFound
	}
	return &c, nil
}

func newStubResolver() *stubResolver {
	return &stubResolver{creds: map[string]integration.Credentials{
		"meta":    {AccessToken: "tok-1"},
		"pancake": {APIKey: "key-1"},
	}}
}

// noSleep records requested backoffs instead of waiting
type noSleep struct {
	waits []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.waits = append(n.waits, d)
	return ctx.Err()
}

func newTestMetaAdapter(t *testing.T, baseURL string, sleeper *noSleep) *MetaAdapter {
	t.Helper()
	a, err := NewMetaAdapter(MetaConfig{BaseURL: baseURL, APIVersion: "v19.0", PageLimit: 2}, newStubResolver(), ClientOptions{
		Timeout: 5 * time.Second,
		Sleep:   sleeper.sleep,
	})
	require.NoError(t, err)
	return a
}

func testAccount() *integration.AdAccount {
	return &integration.AdAccount{
		ID:            uuid.New(),
		Provider:      integration.ProviderMeta,
		ExternalID:    "12345",
		CredentialRef: "meta",
	}
}

func TestMetaConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  MetaConfig
		wantErr bool
	}{
		{name: "valid", config: MetaConfig{BaseURL: "https://graph.facebook.com", APIVersion: "v19.0", PageLimit: 100}},
		{name: "missing base url", config: MetaConfig{APIVersion: "v19.0", PageLimit: 100}, wantErr: true},
		{name: "missing version", config: MetaConfig{BaseURL: "x", PageLimit: 100}, wantErr: true},
		{name: "zero limit", config: MetaConfig{BaseURL: "x", APIVersion: "v19.0"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetaAdapter_FetchInsights(t *testing.T) {
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("follows cursor paging", func(t *testing.T) {
		var srv *httptest.Server
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v19.0/act_12345/insights", r.URL.Path)
			assert.Equal(t, "tok-1", r.URL.Query().Get("access_token"))
			assert.Equal(t, "ad", r.URL.Query().Get("level"))
			assert.JSONEq(t, `{"since":"2024-03-10","until":"2024-03-10"}`, r.URL.Query().Get("time_range"))

			w.Header().Set("Content-Type", "application/json")
			if r.URL.Query().Get("after") == "" {
				fmt.Fprintf(w, `{"data":[
					{"ad_id":"111","ad_name":"A","campaign_id":"c1","campaign_name":"C1","spend":"12.50","clicks":"10","impressions":"1000",
					 "actions":[{"action_type":"link_click","value":"10"},{"action_type":"lead","value":"3"}]},
					{"ad_id":"222","ad_name":"B","campaign_id":"c1","spend":"0","clicks":"0","impressions":"5"}
				],"paging":{"cursors":{"after":"cur1"},"next":"%s/v19.0/act_12345/insights?access_token=tok-1&level=ad&time_range=%%7B%%22since%%22%%3A%%222024-03-10%%22%%2C%%22until%%22%%3A%%222024-03-10%%22%%7D&after=cur1"}}`, srv.URL)
				return
			}
			fmt.Fprint(w, `{"data":[{"ad_id":"333","spend":"7","actions":[{"action_type":"onsite_conversion.lead_grouped","value":"2"}]}],"paging":{"cursors":{"after":"cur2"}}}`)
		}))
		defer srv.Close()

		a := newTestMetaAdapter(t, srv.URL, &noSleep{})
		records, err := a.FetchInsights(context.Background(), testAccount(), date)
		require.NoError(t, err)
		require.Len(t, records, 3)

		assert.Equal(t, "111", records[0].AdID)
		assert.True(t, decimal.RequireFromString("12.5").Equal(records[0].Spend))
		assert.Equal(t, int64(10), records[0].Clicks)
		assert.Equal(t, int64(1000), records[0].Impressions)
		assert.Equal(t, int64(3), records[0].Leads)
		assert.Equal(t, date, records[0].Date)

		assert.Equal(t, int64(0), records[1].Leads)
		assert.Equal(t, "333", records[2].AdID)
		assert.Equal(t, int64(2), records[2].Leads)
	})

	t.Run("cursor still open at the page limit", func(t *testing.T) {
		var srv *httptest.Server
		var calls int
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprintf(w, `{"data":[{"ad_id":"%d","spend":"1"}],"paging":{"next":"%s/v19.0/act_12345/insights?after=cur%d"}}`, calls, srv.URL, calls)
		}))
		defer srv.Close()

		a := newTestMetaAdapter(t, srv.URL, &noSleep{})
		a.config.MaxPages = 3
		records, err := a.FetchInsights(context.Background(), testAccount(), date)
		assert.ErrorIs(t, err, integration.ErrPageLimitReached)
		assert.Nil(t, records)
		assert.Equal(t, 3, calls)
	})

	t.Run("retries 503 then succeeds", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"data":[{"ad_id":"1","spend":"1"}]}`)
		}))
		defer srv.Close()

		sleeper := &noSleep{}
		a := newTestMetaAdapter(t, srv.URL, sleeper)
		records, err := a.FetchInsights(context.Background(), testAccount(), date)
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second}, sleeper.waits)
	})

	t.Run("persistent 503 exhausts retries", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		sleeper := &noSleep{}
		a := newTestMetaAdapter(t, srv.URL, sleeper)
		account := testAccount()
		_, err := a.FetchInsights(context.Background(), account, date)

		var fe *integration.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, 4, fe.Attempts)
		assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
		assert.Equal(t, account.ID.String(), fe.EntityID)
		assert.Equal(t, "2024-03-10", fe.Date)
		assert.True(t, fe.Retryable)
		assert.ErrorIs(t, err, integration.ErrProviderUnavailable)
		assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
		assert.Equal(t, DefaultRetryBackoff, sleeper.waits)
	})

	t.Run("4xx fails immediately", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"bad field"}}`)
		}))
		defer srv.Close()

		a := newTestMetaAdapter(t, srv.URL, &noSleep{})
		_, err := a.FetchInsights(context.Background(), testAccount(), date)

		var fe *integration.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, 1, fe.Attempts)
		assert.False(t, fe.Retryable)
		assert.ErrorIs(t, err, integration.ErrRequestFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("401 is an auth failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		a := newTestMetaAdapter(t, srv.URL, &noSleep{})
		_, err := a.FetchInsights(context.Background(), testAccount(), date)
		assert.ErrorIs(t, err, integration.ErrAuthFailed)
	})

	t.Run("unknown credential is an auth failure", func(t *testing.T) {
		a := newTestMetaAdapter(t, "http://127.0.0.1:1", &noSleep{})
		account := testAccount()
		account.CredentialRef = "missing"
		_, err := a.FetchInsights(context.Background(), account, date)
		assert.ErrorIs(t, err, integration.ErrAuthFailed)
	})

	t.Run("cancelled context stops the backoff", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		a, err := NewMetaAdapter(MetaConfig{BaseURL: srv.URL, APIVersion: "v19.0", PageLimit: 2}, newStubResolver(), ClientOptions{
			RetryBackoff: []time.Duration{time.Hour},
		})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = a.FetchInsights(ctx, testAccount(), date)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("malformed spend", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data":[{"ad_id":"1","spend":"abc"}]}`)
		}))
		defer srv.Close()

		a := newTestMetaAdapter(t, srv.URL, &noSleep{})
		_, err := a.FetchInsights(context.Background(), testAccount(), date)
		assert.ErrorIs(t, err, integration.ErrInvalidResponse)
	})
}

func TestMetaAdapter_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/act_12345", r.URL.Path)
		fmt.Fprint(w, `{"id":"act_12345","name":"Main","account_status":1}`)
	}))
	defer srv.Close()

	a := newTestMetaAdapter(t, srv.URL, &noSleep{})
	assert.NoError(t, a.TestConnection(context.Background(), testAccount()))
}

func TestAccountPath(t *testing.T) {
	assert.Equal(t, "act_1", accountPath("1"))
	assert.Equal(t, "act_1", accountPath("act_1"))
}
