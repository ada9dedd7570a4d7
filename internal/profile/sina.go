package profile

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
)

// DefaultSinaURL prefixes the Sina company information page; the code and
// ".phtml" are appended.
const DefaultSinaURL = "https://vip.stock.finance.sina.com.cn/corp/go.php/vCI_CorpInfo/stockid/"

// SinaLookup scrapes the GBK-encoded Sina company information page.
type SinaLookup struct {
	client  fetcher.Fetcher
	baseURL string
}

// NewSinaLookup creates a SinaLookup.
func NewSinaLookup(f fetcher.Fetcher, baseURL string) *SinaLookup {
	if baseURL == "" {
		baseURL = DefaultSinaURL
	}
	return &SinaLookup{client: f, baseURL: baseURL}
}

// Name implements Lookup.
func (l *SinaLookup) Name() string { return "sina" }

// Lookup implements Lookup.
func (l *SinaLookup) Lookup(ctx context.Context, code string) (model.Profile, error) {
	data, err := l.client.Get(ctx, l.baseURL+code+".phtml", nil)
	if err != nil {
		return model.Profile{}, eris.Wrapf(err, "profile: sina page %s", code)
	}

	doc, err := goquery.NewDocumentFromReader(simplifiedchinese.GBK.NewDecoder().Reader(bytes.NewReader(data)))
	if err != nil {
		return model.Profile{}, eris.Wrapf(err, "profile: sina parse %s", code)
	}

	p := model.Profile{
		Industry:     labelValue(doc, "所属行业"),
		MainBusiness: labelValue(doc, "主营业务"),
	}
	if p.MainBusiness == "" {
		p.MainBusiness = labelValue(doc, "经营范围")
	}
	if p.Industry == "" && p.MainBusiness == "" {
		return model.Profile{}, eris.Wrapf(ErrNotFound, "sina %s", code)
	}
	return p, nil
}

// labelValue finds the table cell whose text starts with label and returns
// the text of the cell after it.
func labelValue(doc *goquery.Document, label string) string {
	var out string
	doc.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		text := strings.TrimSpace(td.Text())
		if !strings.HasPrefix(text, label) {
			return true
		}
		// "所属行业：制造业" in one cell.
		if rest := strings.TrimSpace(strings.TrimLeft(strings.TrimPrefix(text, label), "：:")); rest != "" {
			out = rest
			return false
		}
		out = strings.TrimSpace(td.Next().Text())
		return out == ""
	})
	return strings.Join(strings.Fields(out), " ")
}
