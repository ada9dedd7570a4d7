package source

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
)

// EastmoneyOptions configures the eastmoney provider.
type EastmoneyOptions struct {
	ListURL   string
	DocURL    string
	PageSize  int
	MaxPages  int
	PageDelay time.Duration
}

// EastmoneyProvider lists announcements from the eastmoney notice API.
type EastmoneyProvider struct {
	client fetcher.Fetcher
	opts   EastmoneyOptions
	log    *zap.Logger
}

// NewEastmoneyProvider creates an eastmoney provider.
func NewEastmoneyProvider(f fetcher.Fetcher, opts EastmoneyOptions) *EastmoneyProvider {
	if opts.ListURL == "" {
		opts.ListURL = "https://np-anotice-stock.eastmoney.com/api/security/ann"
	}
	if opts.DocURL == "" {
		opts.DocURL = "https://pdf.dfcfw.com/pdf/"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 100
	}
	return &EastmoneyProvider{
		client: f,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "source.eastmoney")),
	}
}

// Name implements Provider.
func (p *EastmoneyProvider) Name() string { return "eastmoney" }

// BaseURL implements Provider.
func (p *EastmoneyProvider) BaseURL() string { return p.opts.DocURL }

// FetchDay pages through every A-share notice dated day. The nested codes
// array is flattened onto the row using its first entry; the document path
// is derived from art_code.
func (p *EastmoneyProvider) FetchDay(ctx context.Context, day time.Time) (*model.RawTable, error) {
	b := newTableBuilder(p, day)
	date := model.Day(day).Format(model.DateLayout)

	header := http.Header{}
	header.Set("Referer", "https://data.eastmoney.com/notices/")

	fetched := 0
	for page := 1; page <= p.opts.MaxPages; page++ {
		q := url.Values{}
		q.Set("sr", "-1")
		q.Set("page_size", strconv.Itoa(p.opts.PageSize))
		q.Set("page_index", strconv.Itoa(page))
		q.Set("ann_type", "A")
		q.Set("client_source", "web")
		q.Set("f_node", "0")
		q.Set("s_node", "0")
		q.Set("begin_time", date)
		q.Set("end_time", date)

		data, err := p.client.Get(ctx, p.opts.ListURL+"?"+q.Encode(), header)
		if err != nil {
			return nil, eris.Wrapf(err, "eastmoney: list %s page %d", date, page)
		}
		root, err := fetcher.ParseJSON(data)
		if err != nil {
			return nil, eris.Wrapf(err, "eastmoney: parse %s page %d", date, page)
		}

		items := root.Get("data.list").Array()
		for _, item := range items {
			extra := map[string]any{}
			code := item.Get("codes.0")
			if code.Exists() {
				extra["stock_code"] = code.Get("stock_code").String()
				extra["short_name"] = code.Get("short_name").String()
			}
			if art := item.Get("art_code").String(); art != "" {
				extra["pdf_url"] = "H2_" + art + "_1.pdf"
			}
			b.addObject(item, extra)
		}
		fetched += len(items)

		total := int(root.Get("data.total_hits").Int())
		if len(items) < p.opts.PageSize || (total > 0 && fetched >= total) {
			break
		}
		if err := sleepCtx(ctx, p.opts.PageDelay); err != nil {
			return nil, eris.Wrap(err, "eastmoney: page delay")
		}
	}

	p.log.Debug("eastmoney day fetched", zap.String("date", date), zap.Int("items", fetched))
	return b.table, nil
}
