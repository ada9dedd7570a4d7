package reconcile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/model"
)

// ErrNoTitleColumn is returned when no column can be mapped to the title field.
var ErrNoTitleColumn = eris.New("reconcile: no title column")

// Schema fields.
const (
	FieldStockCode   = "stock_code"
	FieldCompanyName = "company_name"
	FieldTitle       = "title"
	FieldDate        = "date"
	FieldDocURL      = "doc_url"
)

// Field is one target schema field with its ordered candidate labels.
type Field struct {
	Name       string
	Candidates []string
}

// DefaultSchema lists the announcement fields and the labels upstream
// providers have been observed to use for them.
func DefaultSchema() []Field {
	return []Field{
		{Name: FieldTitle, Candidates: []string{"公告标题", "标题", "announcementTitle", "announcement_title", "title"}},
		{Name: FieldStockCode, Candidates: []string{"股票代码", "证券代码", "代码", "secCode", "stock_code", "security_code"}},
		{Name: FieldCompanyName, Candidates: []string{"公司名称", "股票简称", "证券简称", "secName", "short_name", "company_name"}},
		{Name: FieldDate, Candidates: []string{"公告日期", "公告时间", "announcementTime", "notice_date", "announcement_date"}},
		{Name: FieldDocURL, Candidates: []string{"PDF链接", "公告链接", "adjunctUrl", "pdf_link", "pdf_url", "attach_url"}},
	}
}

// Mapping records which column each schema field was resolved to.
type Mapping map[string]Column

// Column is a resolved column with its similarity score.
type Column struct {
	Name  string
	Score float64
}

// Has reports whether field was mapped.
func (m Mapping) Has(field string) bool {
	_, ok := m[field]
	return ok
}

// Reconciler converts provider tables into normalized rows.
type Reconciler struct {
	schema    []Field
	threshold float64
	log       *zap.Logger
}

// New creates a Reconciler over the default schema. A non-positive
// threshold selects DefaultThreshold.
func New(threshold float64) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Reconciler{
		schema:    DefaultSchema(),
		threshold: threshold,
		log:       zap.L().With(zap.String("component", "reconcile")),
	}
}

// Threshold returns the acceptance threshold.
func (r *Reconciler) Threshold() float64 {
	return r.threshold
}

// Resolve maps every schema field onto at most one column. Fields are
// resolved in schema order and a column claimed by an earlier field is not
// offered to later ones.
func (r *Reconciler) Resolve(columns []string) Mapping {
	m := make(Mapping, len(r.schema))
	remaining := append([]string(nil), columns...)
	for _, f := range r.schema {
		col, score, ok := Match(remaining, f.Candidates, r.threshold)
		if !ok {
			continue
		}
		m[f.Name] = Column{Name: col, Score: score}
		remaining = without(remaining, col)
	}
	return m
}

// Normalize maps a raw provider table onto the internal schema.
// Unmapped fields hold model.MissingValue; a table without a title column
// fails with ErrNoTitleColumn. Rows whose title is blank are dropped.
func (r *Reconciler) Normalize(table *model.RawTable) ([]model.NormalizedRow, Mapping, error) {
	if table == nil {
		return nil, nil, nil
	}
	columns := table.Columns
	if len(columns) == 0 {
		columns = columnsOf(table.Rows)
	}

	m := r.Resolve(columns)
	if !m.Has(FieldTitle) {
		return nil, m, eris.Wrapf(ErrNoTitleColumn, "source %s", table.Source)
	}
	for _, f := range r.schema {
		if !m.Has(f.Name) {
			r.log.Warn("unmapped column",
				zap.String("source", table.Source),
				zap.String("field", f.Name),
				zap.Strings("columns", columns),
			)
		}
	}

	rows := make([]model.NormalizedRow, 0, len(table.Rows))
	for _, raw := range table.Rows {
		title := cleanTitle(value(raw, m, FieldTitle))
		if model.IsMissing(title) {
			continue
		}

		date, ok := ParseDate(value(raw, m, FieldDate))
		if !ok {
			date = table.Day
		}
		if date.IsZero() {
			continue
		}

		rows = append(rows, model.NormalizedRow{
			Date:        model.Day(date),
			Title:       title,
			StockCode:   strings.TrimSpace(value(raw, m, FieldStockCode)),
			CompanyName: strings.TrimSpace(value(raw, m, FieldCompanyName)),
			DocURL:      ResolveDocURL(table.BaseURL, value(raw, m, FieldDocURL)),
			Source:      table.Source,
		})
	}
	return rows, m, nil
}

// value returns the string form of the mapped field or model.MissingValue.
func value(raw model.RawRow, m Mapping, field string) string {
	col, ok := m[field]
	if !ok {
		return model.MissingValue
	}
	v, ok := raw[col.Name]
	if !ok || v == nil {
		return model.MissingValue
	}
	s := stringify(v)
	if strings.TrimSpace(s) == "" {
		return model.MissingValue
	}
	return s
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cleanTitle strips highlight markup and surrounding whitespace.
func cleanTitle(s string) string {
	if s == model.MissingValue {
		return s
	}
	return strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
}

// ResolveDocURL prefixes relative document paths with base. Missing values
// pass through unchanged.
func ResolveDocURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if model.IsMissing(ref) {
		return model.MissingValue
	}
	lower := strings.ToLower(ref)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	if base == "" {
		return ref
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
}

func columnsOf(rows []model.RawRow) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

func without(cols []string, drop string) []string {
	out := cols[:0:0]
	for _, c := range cols {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}
