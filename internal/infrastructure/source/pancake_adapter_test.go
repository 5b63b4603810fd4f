package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrecon/backend/internal/domain/integration"
)

func testShop() *integration.Shop {
	return &integration.Shop{
		ID:            uuid.New(),
		Provider:      integration.ProviderPancake,
		ExternalID:    "987",
		CredentialRef: "pancake",
	}
}

func newTestPancakeAdapter(t *testing.T, baseURL string) *PancakeAdapter {
	t.Helper()
	a, err := NewPancakeAdapter(PancakeConfig{BaseURL: baseURL, PageSize: 2}, newStubResolver(), ClientOptions{
		Sleep: (&noSleep{}).sleep,
	})
	require.NoError(t, err)
	return a
}

func TestPancakeBucket(t *testing.T) {
	tests := []struct {
		status int
		want   integration.OrderBucket
	}{
		{0, integration.BucketUnconfirmed},
		{1, integration.BucketConfirmed},
		{8, integration.BucketConfirmed},
		{11, integration.BucketRestocking},
		{9, integration.BucketWaitingPickup},
		{2, integration.BucketShipped},
		{3, integration.BucketDelivered},
		{6, integration.BucketCanceled},
		{7, integration.BucketCanceled},
		{4, integration.BucketReturned},
		{5, integration.BucketReturned},
		{42, integration.BucketUnconfirmed},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, PancakeBucket(tt.status))
		})
	}
}

func TestPancakeAdapter_FetchOrders(t *testing.T) {
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("walks page numbers", func(t *testing.T) {
		var pages []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/shops/987/orders", r.URL.Path)
			q := r.URL.Query()
			assert.Equal(t, "key-1", q.Get("api_key"))
			assert.Equal(t, strconv.FormatInt(date.Unix(), 10), q.Get("startDateTime"))
			pages = append(pages, q.Get("page_number"))

			switch q.Get("page_number") {
			case "1":
				fmt.Fprint(w, `{"success":true,"total_pages":2,"page_number":1,"data":[
					{"id":1001,"status":3,"cod":150000,"total_price":180000,"ad_id":"120200000001","inserted_at":"2024-03-10T08:00:00"},
					{"id":1002,"status":6,"cod":"90000","total_price":90000,"p_utm_content":"ad_id=120200000002"}
				]}`)
			default:
				fmt.Fprint(w, `{"success":true,"total_pages":2,"page_number":2,"data":[
					{"id":1003,"status":99,"cod":0,"total_price":0}
				]}`)
			}
		}))
		defer srv.Close()

		a := newTestPancakeAdapter(t, srv.URL)
		orders, err := a.FetchOrders(context.Background(), testShop(), date)
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2"}, pages)
		require.Len(t, orders, 3)

		assert.Equal(t, "1001", orders[0].OrderID)
		assert.Equal(t, integration.BucketDelivered, orders[0].Bucket)
		assert.True(t, decimal.NewFromInt(150000).Equal(orders[0].CODAmount))
		assert.Equal(t, "120200000001", orders[0].Attribution)
		assert.Equal(t, date, orders[0].OrderDate)
		require.NotNil(t, orders[0].ProviderTime)
		assert.Equal(t, 8, orders[0].ProviderTime.Hour())

		assert.Equal(t, integration.BucketCanceled, orders[1].Bucket)
		assert.Equal(t, "ad_id=120200000002", orders[1].Attribution)
		assert.True(t, decimal.NewFromInt(90000).Equal(orders[1].CODAmount))

		assert.Equal(t, integration.BucketUnconfirmed, orders[2].Bucket)
		assert.Equal(t, 99, orders[2].StatusCode)
	})

	t.Run("more pages than the limit", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprintf(w, `{"success":true,"total_pages":5,"page_number":%s,"data":[{"id":%d,"status":3}]}`,
				r.URL.Query().Get("page_number"), calls)
		}))
		defer srv.Close()

		a := newTestPancakeAdapter(t, srv.URL)
		a.config.MaxPages = 2
		orders, err := a.FetchOrders(context.Background(), testShop(), date)
		assert.ErrorIs(t, err, integration.ErrPageLimitReached)
		assert.ErrorIs(t, err, integration.ErrInvalidResponse)
		assert.Nil(t, orders)
		assert.Equal(t, 2, calls)
	})

	t.Run("last page at the limit is complete", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"success":true,"total_pages":2,"data":[{"id":%s,"status":3}]}`, r.URL.Query().Get("page_number"))
		}))
		defer srv.Close()

		a := newTestPancakeAdapter(t, srv.URL)
		a.config.MaxPages = 2
		orders, err := a.FetchOrders(context.Background(), testShop(), date)
		require.NoError(t, err)
		assert.Len(t, orders, 2)
	})

	t.Run("unsuccessful response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success":false,"message":"shop not found"}`)
		}))
		defer srv.Close()

		a := newTestPancakeAdapter(t, srv.URL)
		_, err := a.FetchOrders(context.Background(), testShop(), date)
		assert.ErrorIs(t, err, integration.ErrRequestFailed)
	})

	t.Run("rate limited until exhausted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		a := newTestPancakeAdapter(t, srv.URL)
		_, err := a.FetchOrders(context.Background(), testShop(), date)
		var fe *integration.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, integration.ProviderPancake, fe.Provider)
		assert.Equal(t, http.StatusTooManyRequests, fe.StatusCode)
		assert.ErrorIs(t, err, integration.ErrProviderRateLimited)
	})
}

func TestPancakeAdapter_TestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "key-1" {
			fmt.Fprint(w, `{"success":false,"message":"invalid api key"}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"shop":{"id":987,"name":"Main"}}`)
	}))
	defer srv.Close()

	a := newTestPancakeAdapter(t, srv.URL)
	assert.NoError(t, a.TestConnection(context.Background(), testShop()))

	a.resolver = &stubResolver{creds: map[string]integration.Credentials{"pancake": {APIKey: "wrong"}}}
	assert.ErrorIs(t, a.TestConnection(context.Background(), testShop()), integration.ErrAuthFailed)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := newTestPancakeAdapter(t, "http://localhost")
	r.RegisterOrderClient(a)

	c, err := r.OrderClient(integration.ProviderPancake)
	require.NoError(t, err)
	assert.Equal(t, integration.ProviderPancake, c.Provider())

	_, err = r.AdInsightClient(integration.ProviderMeta)
	assert.ErrorIs(t, err, integration.ErrProviderNotRegistered)
}
