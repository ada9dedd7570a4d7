package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/mna-tracker/internal/model"
)

// name is a run of characters that can appear in a Chinese entity name.
const name = `[\p{Han}A-Za-z0-9（）()·&]`

var (
	targetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:标的公司|标的资产|交易标的)为(` + name + `+?公司)`),
		regexp.MustCompile(`拟(?:购买|收购)(` + name + `+?公司)`),
		regexp.MustCompile(`(?:标的公司|标的资产|交易标的)为(` + name + `+?)(?:[，。；、]|的)`),
	}
	pricePattern        = regexp.MustCompile(`(?:交易作价|交易价格|交易对价)(?:暂定为|初步确定为|确定为|合计为|为)([0-9][0-9,.]*)(亿元|万元|元)`)
	counterpartyPattern = regexp.MustCompile(`交易对方为(` + name + `[\p{Han}A-Za-z0-9（）()·&、，,]*?)[，。；]`)
	acquirerPattern     = regexp.MustCompile(`(?:收购方|收购人)(?:为|系)(` + name + `+?)[，。；、（(]`)
)

// transactionTypes is checked in order against the title, then the text.
var transactionTypes = []string{
	"发行股份购买资产",
	"重大资产重组",
	"要约收购",
	"收购报告书",
	"吸收合并",
	"重大资产出售",
	"现金购买",
}

// filerIsTargetTitles mark filings written by the company being acquired.
var filerIsTargetTitles = []string{"要约收购报告书", "收购报告书", "权益变动报告书"}

// PatternStrategy extracts deal fields with regular expressions. It needs
// no credentials and is always available.
type PatternStrategy struct{}

// NewPatternStrategy creates a PatternStrategy.
func NewPatternStrategy() *PatternStrategy { return &PatternStrategy{} }

// Name implements Strategy.
func (s *PatternStrategy) Name() string { return "pattern" }

// Parse implements Strategy. Fields the rules cannot find are left empty.
func (s *PatternStrategy) Parse(_ context.Context, text string, hint Hint) (model.DealDetails, error) {
	compact := strings.Join(strings.Fields(text), "")

	var d model.DealDetails
	d.TransactionType = transactionType(hint.Title, compact)

	for _, re := range targetPatterns {
		if m := re.FindStringSubmatch(compact); m != nil {
			d.Target = m[1]
			break
		}
	}
	if m := pricePattern.FindStringSubmatch(compact); m != nil {
		d.TransactionPrice = m[1] + m[2]
		d.AmountCNY = ParseAmountCNY(d.TransactionPrice)
	}
	var counterparty string
	if m := counterpartyPattern.FindStringSubmatch(compact); m != nil {
		counterparty = strings.Trim(m[1], "，,、")
	}
	var acquirer string
	if m := acquirerPattern.FindStringSubmatch(compact); m != nil {
		acquirer = m[1]
	}

	filer := hint.CompanyName
	if model.IsMissing(filer) {
		filer = ""
	}
	switch {
	case filerIsTarget(hint.Title):
		// The filer is being acquired; the other side is the buyer.
		d.Target = firstNonEmpty(filer, d.Target)
		d.Acquirer = firstNonEmpty(acquirer, counterparty)
	case d.TransactionType == "重大资产出售":
		d.Acquirer = firstNonEmpty(acquirer, counterparty)
	default:
		d.Acquirer = firstNonEmpty(acquirer, filer)
	}

	d.Summary = summarize(d, counterparty)
	return d, nil
}

func transactionType(title, text string) string {
	for _, src := range []string{title, text} {
		for _, t := range transactionTypes {
			if strings.Contains(src, t) {
				return t
			}
		}
	}
	return ""
}

func filerIsTarget(title string) bool {
	for _, t := range filerIsTargetTitles {
		if strings.Contains(title, t) {
			return true
		}
	}
	return false
}

func summarize(d model.DealDetails, counterparty string) string {
	var parts []string
	if d.TransactionType != "" {
		parts = append(parts, d.TransactionType)
	}
	switch {
	case d.Acquirer != "" && d.Target != "":
		parts = append(parts, d.Acquirer+"收购"+d.Target)
	case d.Target != "":
		parts = append(parts, "标的为"+d.Target)
	case d.Acquirer != "":
		parts = append(parts, "收购方为"+d.Acquirer)
	}
	if d.TransactionPrice != "" {
		parts = append(parts, "交易作价"+d.TransactionPrice)
	}
	if counterparty != "" {
		parts = append(parts, "交易对方为"+counterparty)
	}
	return strings.Join(parts, "，")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
