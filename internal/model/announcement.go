package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical announcement date format.
const DateLayout = "2006-01-02"

// EnrichStatus is the enrichment state of a stored announcement.
type EnrichStatus string

const (
	StatusPending  EnrichStatus = "pending"
	StatusEnriched EnrichStatus = "enriched"
	StatusFailed   EnrichStatus = "failed"
)

// ParseEnrichStatus converts a stored status string, treating unknown values as pending.
func ParseEnrichStatus(s string) EnrichStatus {
	switch EnrichStatus(strings.TrimSpace(s)) {
	case StatusEnriched:
		return StatusEnriched
	case StatusFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Key is the natural key of an announcement: (announcement_date, announcement_title).
type Key struct {
	Date  time.Time `json:"announcement_date"`
	Title string    `json:"announcement_title"`
}

// NewKey builds a Key, truncating the date to a UTC calendar day.
func NewKey(date time.Time, title string) Key {
	return Key{Date: Day(date), Title: strings.TrimSpace(title)}
}

// DateString returns the key date as YYYY-MM-DD.
func (k Key) DateString() string {
	return k.Date.Format(DateLayout)
}

// String renders the key for logs.
func (k Key) String() string {
	return k.DateString() + " " + k.Title
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Announcement is a persisted announcement record.
type Announcement struct {
	ID             int64        `json:"id"`
	Date           time.Time    `json:"announcement_date"`
	Title          string       `json:"announcement_title"`
	StockCode      string       `json:"stock_code"`
	CompanyName    string       `json:"company_name"`
	DocURL         string       `json:"pdf_link,omitempty"`
	Industry       string       `json:"industry,omitempty"`
	MainBusiness   string       `json:"main_business,omitempty"`
	Details        DealDetails  `json:"details"`
	Status         EnrichStatus `json:"status"`
	EnrichAttempts int          `json:"enrich_attempts"`
	LastError      string       `json:"last_error,omitempty"`
	Source         string       `json:"source,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Key returns the natural key of the announcement.
func (a Announcement) Key() Key {
	return NewKey(a.Date, a.Title)
}

// Pending reports whether the announcement still awaits enrichment.
func (a Announcement) Pending() bool {
	return a.Status == StatusPending
}

// DealDetails holds the derived deal fields produced by enrichment.
type DealDetails struct {
	TransactionType  string              `json:"transaction_type,omitempty"`
	Acquirer         string              `json:"acquirer,omitempty"`
	Target           string              `json:"target_company,omitempty"`
	TransactionPrice string              `json:"transaction_price,omitempty"`
	AmountCNY        decimal.NullDecimal `json:"transaction_amount_cny"`
	Summary          string              `json:"summary,omitempty"`
	Outcome          ExtractOutcome      `json:"outcome,omitempty"`
	Strategy         string              `json:"strategy,omitempty"`
}

// Empty reports whether none of the five derived fields is set.
func (d DealDetails) Empty() bool {
	return d.TransactionType == "" && d.Acquirer == "" && d.Target == "" &&
		d.TransactionPrice == "" && d.Summary == ""
}

// Enriched reports whether the details represent a completed enrichment:
// a summary is present and it is not a failure sentinel.
func (d DealDetails) Enriched() bool {
	return d.Summary != "" && !IsFailureSentinel(d.Summary)
}

// FillUndisclosed replaces empty fields with NotDisclosed.
func (d DealDetails) FillUndisclosed() DealDetails {
	for _, f := range []*string{&d.TransactionType, &d.Acquirer, &d.Target, &d.TransactionPrice, &d.Summary} {
		if strings.TrimSpace(*f) == "" {
			*f = NotDisclosed
		}
	}
	return d
}

// FailedDetails returns details in which every derived field carries the
// failure sentinel of the given outcome.
func FailedDetails(outcome ExtractOutcome, strategy string) DealDetails {
	s := outcome.Sentinel()
	return DealDetails{
		TransactionType:  s,
		Acquirer:         s,
		Target:           s,
		TransactionPrice: s,
		Summary:          s,
		Outcome:          outcome,
		Strategy:         strategy,
	}
}
