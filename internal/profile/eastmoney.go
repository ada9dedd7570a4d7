package profile

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
)

// DefaultEastmoneyURL is the F10 company survey endpoint.
const DefaultEastmoneyURL = "https://emweb.securities.eastmoney.com/PC_HSF10/CompanySurvey/PageAjax"

// EastmoneyLookup reads the F10 company survey JSON.
type EastmoneyLookup struct {
	client  fetcher.Fetcher
	baseURL string
}

// NewEastmoneyLookup creates an EastmoneyLookup.
func NewEastmoneyLookup(f fetcher.Fetcher, baseURL string) *EastmoneyLookup {
	if baseURL == "" {
		baseURL = DefaultEastmoneyURL
	}
	return &EastmoneyLookup{client: f, baseURL: baseURL}
}

// Name implements Lookup.
func (l *EastmoneyLookup) Name() string { return "eastmoney" }

// Lookup implements Lookup.
func (l *EastmoneyLookup) Lookup(ctx context.Context, code string) (model.Profile, error) {
	q := url.Values{}
	q.Set("code", model.Exchange(code)+code)

	header := http.Header{}
	header.Set("Referer", "https://emweb.securities.eastmoney.com/")

	data, err := l.client.Get(ctx, l.baseURL+"?"+q.Encode(), header)
	if err != nil {
		return model.Profile{}, eris.Wrapf(err, "profile: eastmoney survey %s", code)
	}
	root, err := fetcher.ParseJSON(data)
	if err != nil {
		return model.Profile{}, eris.Wrapf(err, "profile: eastmoney parse %s", code)
	}

	basic := root.Get("jbzl.0")
	if !basic.Exists() {
		basic = root.Get("jbzl")
	}
	if !basic.IsObject() {
		return model.Profile{}, eris.Wrapf(ErrNotFound, "eastmoney %s", code)
	}

	p := model.Profile{
		Industry:     first(basic, "EM2016", "INDUSTRYCSRC1"),
		MainBusiness: first(basic, "MAIN_BUSINESS", "JYFW"),
	}
	if p.MainBusiness == "" {
		p.MainBusiness = first(root.Get("jyfw.0"), "MAIN_BUSINESS", "JYFW")
	}
	if p.Industry == "" && p.MainBusiness == "" {
		return model.Profile{}, eris.Wrapf(ErrNotFound, "eastmoney %s", code)
	}
	return p, nil
}

// first returns the first non-empty string among obj's keys.
func first(obj gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(obj.Get(k).String()); v != "" {
			return v
		}
	}
	return ""
}
