package model

import "time"

// RawRow is a single upstream record keyed by whatever column names the
// provider happened to use for this response.
type RawRow map[string]any

// RawTable is one provider response for one day. It is never persisted and
// must pass through the column reconciler before use.
type RawTable struct {
	Source  string
	BaseURL string
	Day     time.Time
	Columns []string
	Rows    []RawRow
}

// Len returns the number of raw rows.
func (t *RawTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// NormalizedRow is an announcement row mapped onto the internal schema.
// Fields the reconciler could not map hold MissingValue.
type NormalizedRow struct {
	Date        time.Time `json:"announcement_date"`
	Title       string    `json:"announcement_title"`
	StockCode   string    `json:"stock_code"`
	CompanyName string    `json:"company_name"`
	DocURL      string    `json:"pdf_link,omitempty"`
	Source      string    `json:"source"`
}

// Key returns the natural key of the row.
func (r NormalizedRow) Key() Key {
	return NewKey(r.Date, r.Title)
}

// IsMissing reports whether v is empty or the reconciler's missing marker.
func IsMissing(v string) bool {
	return v == "" || v == MissingValue
}
