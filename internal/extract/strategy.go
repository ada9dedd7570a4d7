package extract

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/resilience"
)

// ErrUnavailable is returned by strategies that lack the credentials or
// client they need. It maps to the unavailable outcome.
var ErrUnavailable = eris.New("extract: strategy unavailable")

// Hint carries announcement context that helps interpret the document.
type Hint struct {
	Title       string
	CompanyName string
	StockCode   string
}

// Strategy turns document text into deal details.
type Strategy interface {
	Name() string
	Parse(ctx context.Context, text string, hint Hint) (model.DealDetails, error)
}

// availability is implemented by strategies that can tell up front whether
// they are able to run, so the document download can be skipped.
type availability interface {
	Available() bool
}

// Available reports whether s can run.
func Available(s Strategy) bool {
	if a, ok := s.(availability); ok {
		return a.Available()
	}
	return s != nil
}

// modelRetry retries transient model API errors a bounded number of times
// within the document timeout.
func modelRetry(service string) resilience.RetryConfig {
	cfg := resilience.FromTimeouts(3, 10*time.Second)
	cfg.InitialBackoff = 2 * time.Second
	cfg.OnRetry = resilience.RetryLogger(service, "extract")
	return cfg
}

// Field keys shared by the model instruction and the reply parser.
const (
	keyTransactionType  = "transaction_type"
	keyAcquirer         = "acquirer"
	keyTarget           = "target_company"
	keyTransactionPrice = "transaction_price"
	keySummary          = "summary"
)

const instruction = `你是A股并购公告的信息抽取助手。阅读用户提供的公告正文，只输出一个JSON对象，不要输出任何其他文字。
JSON对象必须且只能包含以下五个字段，值均为字符串：
- "transaction_type": 交易类型，例如 发行股份购买资产、重大资产重组、要约收购、吸收合并、重大资产出售、现金购买
- "acquirer": 收购方（买方）全称
- "target_company": 标的公司或标的资产
- "transaction_price": 交易作价，保留原文数字和单位（元、万元或亿元）
- "summary": 不超过100字的交易概要
公告未提及的字段一律填写"未披露"，不得推测或编造。`

// buildPrompt renders the user message for model strategies.
func buildPrompt(text string, hint Hint, maxChars int) string {
	var sb strings.Builder
	sb.WriteString("公告标题：")
	sb.WriteString(hint.Title)
	sb.WriteString("\n公告公司：")
	sb.WriteString(hint.CompanyName)
	if hint.StockCode != "" {
		sb.WriteString("（")
		sb.WriteString(hint.StockCode)
		sb.WriteString("）")
	}
	sb.WriteString("\n公告正文：\n")
	sb.WriteString(truncateRunes(text, maxChars))
	return sb.String()
}

// truncateRunes cuts s to at most n runes. Non-positive n leaves s intact.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// parseReply reads the five fields from the first {...} span of a model
// reply.
func parseReply(reply string) (model.DealDetails, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return model.DealDetails{}, eris.New("extract: no JSON object in model reply")
	}
	span := reply[start : end+1]
	if !gjson.Valid(span) {
		return model.DealDetails{}, eris.New("extract: malformed JSON in model reply")
	}
	obj := gjson.Parse(span)
	d := model.DealDetails{
		TransactionType:  strings.TrimSpace(obj.Get(keyTransactionType).String()),
		Acquirer:         strings.TrimSpace(obj.Get(keyAcquirer).String()),
		Target:           strings.TrimSpace(obj.Get(keyTarget).String()),
		TransactionPrice: strings.TrimSpace(obj.Get(keyTransactionPrice).String()),
		Summary:          strings.TrimSpace(obj.Get(keySummary).String()),
	}
	if d.Empty() {
		return d, eris.New("extract: model reply has none of the expected fields")
	}
	return d, nil
}
