package quote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mna-tracker/internal/fetcher"
)

func newTestClient(baseURL string) *Client {
	c := New(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
	}), baseURL)
	c.now = func() time.Time { return time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC) }
	return c
}

func TestSecID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"600000", "1.600000", true},
		{"sz000001", "0.000001", true},
		{"830799", "0.830799", true},
		{"N/A", "", false},
	}
	for _, tt := range tests {
		got, ok := SecID(tt.code)
		assert.Equal(t, tt.ok, ok, tt.code)
		assert.Equal(t, tt.want, got, tt.code)
	}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("fltt"))
		switch q.Get("secid") {
		case "0.000001":
			w.Write([]byte(`{"rc":0,"data":{"f43":10.52,"f57":"000001","f58":"平安银行","f116":204150000000.0,"f162":4.71,"f170":-1.22}}`))
		case "1.600001":
			w.Write([]byte(`{"rc":0,"data":{"f43":"-","f57":"600001","f58":"停牌股","f116":"-","f162":"-","f170":"-"}}`))
		default:
			w.Write([]byte(`{"rc":0,"data":null}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	q, err := c.Get(context.Background(), "000001")
	require.NoError(t, err)
	assert.Equal(t, "平安银行", q.Name)
	assert.Equal(t, "10.52", q.Price.Decimal.String())
	assert.Equal(t, "-1.22", q.ChangePct.Decimal.String())
	assert.Equal(t, "204150000000", q.MarketCap.Decimal.String())
	assert.Equal(t, "4.71", q.PE.Decimal.String())
	assert.Equal(t, 2024, q.AsOf.Year())

	q, err = c.Get(context.Background(), "600001")
	require.NoError(t, err)
	assert.False(t, q.Price.Valid)
	assert.False(t, q.PE.Valid)

	_, err = c.Get(context.Background(), "600002")
	assert.True(t, errors.Is(err, ErrUnknownCode))

	_, err = c.Get(context.Background(), "bogus")
	assert.True(t, errors.Is(err, ErrUnknownCode))
}
