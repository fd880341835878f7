package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()
	var got http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = *r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestClient_Fetch(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantIDs []string
		wantErr string
	}{
		{
			name:    "envelope",
			status:  http.StatusOK,
			body:    `{"products":[{"id":1,"title":"Phone","price":9.99,"discountPercentage":10},{"id":2,"price":5}],"total":2,"skip":0,"limit":200}`,
			wantIDs: []string{"1", "2"},
		},
		{
			name:    "bare array",
			status:  http.StatusOK,
			body:    `[{"id":"a","price":"1.50"},{"id":"b","price":2}]`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "empty collection",
			status:  http.StatusOK,
			body:    `{"products":[]}`,
			wantIDs: []string{},
		},
		{
			name:    "server error",
			status:  http.StatusInternalServerError,
			body:    `oops`,
			wantErr: "HTTP 500",
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    ``,
			wantErr: "HTTP 404",
		},
		{
			name:    "malformed json",
			status:  http.StatusOK,
			body:    `{"products":[{"id":1,`,
			wantErr: "decode catalog",
		},
		{
			name:    "missing envelope field",
			status:  http.StatusOK,
			body:    `{"items":[]}`,
			wantErr: "missing products field",
		},
		{
			name:    "scalar body",
			status:  http.StatusOK,
			body:    `42`,
			wantErr: "want array or object",
		},
		{
			name:    "invalid record",
			status:  http.StatusOK,
			body:    `[{"id":1,"price":-3}]`,
			wantErr: "record 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			c := New(Config{URL: srv.URL})

			products, err := c.Fetch(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, products)
				return
			}
			require.NoError(t, err)

			ids := make([]string, len(products))
			for i, p := range products {
				ids[i] = p.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestClient_FetchKeepsRecord(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `[{"id":7,"title":"Lamp","price":12.5,"discountPercentage":3.2}]`)

	products, err := New(Config{URL: srv.URL}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, "12.5", p.Price.String())
	assert.Equal(t, "3.2", p.DiscountPercentage.String())
	assert.JSONEq(t, `{"id":7,"title":"Lamp","price":12.5,"discountPercentage":3.2}`, string(p.Raw))
}

func TestClient_Headers(t *testing.T) {
	srv, got := serve(t, http.StatusOK, `[]`)

	_, err := New(Config{URL: srv.URL, UserAgent: "test-agent"}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "test-agent", got.Header.Get("User-Agent"))
}

func TestClient_BodyLimit(t *testing.T) {
	big := `[` + strings.Repeat(" ", MaxBodySize) + `]`
	srv, _ := serve(t, http.StatusOK, big)

	_, err := New(Config{URL: srv.URL}).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_CallerCancel(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `[]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{URL: srv.URL}).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultURL, c.url)
	assert.Equal(t, defaultUserAgent, c.userAgent)
	assert.NotNil(t, c.http)
}
