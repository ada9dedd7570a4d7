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

// CninfoOptions configures the cninfo provider.
type CninfoOptions struct {
	QueryURL  string
	StaticURL string
	PageSize  int
	MaxPages  int
	PageDelay time.Duration
}

// CninfoProvider lists announcements from the cninfo hisAnnouncement query.
type CninfoProvider struct {
	client fetcher.Fetcher
	opts   CninfoOptions
	log    *zap.Logger
}

// NewCninfoProvider creates a cninfo provider.
func NewCninfoProvider(f fetcher.Fetcher, opts CninfoOptions) *CninfoProvider {
	if opts.QueryURL == "" {
		opts.QueryURL = "https://www.cninfo.com.cn/new/hisAnnouncement/query"
	}
	if opts.StaticURL == "" {
		opts.StaticURL = "https://static.cninfo.com.cn/"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 30
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 200
	}
	return &CninfoProvider{
		client: f,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "source.cninfo")),
	}
}

// Name implements Provider.
func (p *CninfoProvider) Name() string { return "cninfo" }

// BaseURL implements Provider.
func (p *CninfoProvider) BaseURL() string { return p.opts.StaticURL }

// FetchDay pages through every announcement published on day.
func (p *CninfoProvider) FetchDay(ctx context.Context, day time.Time) (*model.RawTable, error) {
	b := newTableBuilder(p, day)
	date := model.Day(day).Format(model.DateLayout)

	header := http.Header{}
	header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	header.Set("Origin", "https://www.cninfo.com.cn")
	header.Set("Referer", "https://www.cninfo.com.cn/new/commonUrl/pageOfSearch?url=disclosure/list/search")
	header.Set("X-Requested-With", "XMLHttpRequest")

	for page := 1; page <= p.opts.MaxPages; page++ {
		form := url.Values{}
		form.Set("pageNum", strconv.Itoa(page))
		form.Set("pageSize", strconv.Itoa(p.opts.PageSize))
		form.Set("column", "szse")
		form.Set("tabName", "fulltext")
		form.Set("plate", "")
		form.Set("stock", "")
		form.Set("searchkey", "")
		form.Set("category", "")
		form.Set("seDate", date+"~"+date)
		form.Set("sortName", "")
		form.Set("sortType", "")
		form.Set("isHLtitle", "true")

		data, err := p.client.PostForm(ctx, p.opts.QueryURL, form, header)
		if err != nil {
			return nil, eris.Wrapf(err, "cninfo: query %s page %d", date, page)
		}
		root, err := fetcher.ParseJSON(data)
		if err != nil {
			return nil, eris.Wrapf(err, "cninfo: parse %s page %d", date, page)
		}

		items := root.Get("announcements").Array()
		for _, item := range items {
			b.addObject(item, nil)
		}

		p.log.Debug("cninfo page fetched",
			zap.String("date", date),
			zap.Int("page", page),
			zap.Int("items", len(items)),
		)

		if len(items) < p.opts.PageSize || !root.Get("hasMore").Bool() {
			break
		}
		if err := sleepCtx(ctx, p.opts.PageDelay); err != nil {
			return nil, eris.Wrap(err, "cninfo: page delay")
		}
	}

	return b.table, nil
}
