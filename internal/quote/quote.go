// Package quote fetches a live market snapshot for a stock code.
package quote

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
)

// DefaultBaseURL is the eastmoney push2 single-stock endpoint.
const DefaultBaseURL = "https://push2.eastmoney.com/api/qt/stock/get"

// ErrUnknownCode is returned for codes that are not A-share codes or that
// the quote service does not know.
var ErrUnknownCode = eris.New("quote: unknown stock code")

// Field ids in the push2 response.
const (
	fieldPrice     = "f43"
	fieldCode      = "f57"
	fieldName      = "f58"
	fieldChangePct = "f170"
	fieldMarketCap = "f116"
	fieldPE        = "f162"
)

// Quote is a point-in-time market snapshot. Values the service reports as
// unavailable (suspended stocks, loss-making PE) are null.
type Quote struct {
	StockCode string              `json:"stock_code"`
	Name      string              `json:"name"`
	Price     decimal.NullDecimal `json:"price"`
	ChangePct decimal.NullDecimal `json:"change_pct"`
	MarketCap decimal.NullDecimal `json:"market_cap"`
	PE        decimal.NullDecimal `json:"pe_dynamic"`
	AsOf      time.Time           `json:"as_of"`
}

// Client looks up quotes.
type Client struct {
	client  fetcher.Fetcher
	baseURL string
	now     func() time.Time
}

// New creates a quote Client.
func New(f fetcher.Fetcher, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{client: f, baseURL: baseURL, now: time.Now}
}

// SecID returns the push2 security id ("1.600000" or "0.000001").
func SecID(code string) (string, bool) {
	code = model.NormalizeCode(code)
	switch model.Exchange(code) {
	case model.ExchangeShanghai:
		return "1." + code, true
	case model.ExchangeShenzhen, model.ExchangeBeijing:
		return "0." + code, true
	default:
		return "", false
	}
}

// Get fetches the quote for code.
func (c *Client) Get(ctx context.Context, code string) (*Quote, error) {
	secid, ok := SecID(code)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownCode, "code %q", code)
	}

	q := url.Values{}
	q.Set("secid", secid)
	q.Set("fltt", "2")
	q.Set("invt", "2")
	q.Set("fields", fieldPrice+","+fieldCode+","+fieldName+","+fieldChangePct+","+fieldMarketCap+","+fieldPE)

	header := http.Header{}
	header.Set("Referer", "https://quote.eastmoney.com/")

	data, err := c.client.Get(ctx, c.baseURL+"?"+q.Encode(), header)
	if err != nil {
		return nil, eris.Wrapf(err, "quote: fetch %s", code)
	}
	root, err := fetcher.ParseJSON(data)
	if err != nil {
		return nil, eris.Wrapf(err, "quote: parse %s", code)
	}

	d := root.Get("data")
	if !d.IsObject() {
		return nil, eris.Wrapf(ErrUnknownCode, "code %q", code)
	}
	return &Quote{
		StockCode: model.NormalizeCode(code),
		Name:      d.Get(fieldName).String(),
		Price:     number(d.Get(fieldPrice)),
		ChangePct: number(d.Get(fieldChangePct)),
		MarketCap: number(d.Get(fieldMarketCap)),
		PE:        number(d.Get(fieldPE)),
		AsOf:      c.now().UTC(),
	}, nil
}

// number converts a push2 value, which is a number or "-" when unavailable.
func number(v gjson.Result) decimal.NullDecimal {
	if v.Type != gjson.Number {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v.Raw)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
