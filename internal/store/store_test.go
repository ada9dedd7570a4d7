package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mna-tracker/internal/model"
)

func okDetails() model.DealDetails {
	return model.DealDetails{
		TransactionType:  "发行股份购买资产",
		Acquirer:         "甲公司",
		Target:           "乙公司",
		TransactionPrice: "1.5亿元",
		AmountCNY:        decimal.NewNullDecimal(decimal.NewFromInt(150000000)),
		Summary:          "甲公司拟发行股份购买乙公司100%股权",
		Outcome:          model.OutcomeOK,
		Strategy:         "pattern",
	}
}

func TestParseConflictPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ConflictPolicy
		wantErr bool
	}{
		{"do_nothing", PolicyDoNothing, false},
		{"backfill_missing", PolicyBackfillMissing, false},
		{"", PolicyBackfillMissing, false},
		{" do_nothing ", PolicyDoNothing, false},
		{"overwrite", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseConflictPolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanUpdate(t *testing.T) {
	t.Parallel()

	failed := func(o model.ExtractOutcome) model.DealDetails {
		return model.DealDetails{Outcome: o, Strategy: "pattern"}
	}

	tests := []struct {
		name         string
		cur          rowState
		upd          DetailUpdate
		wantStatus   model.EnrichStatus
		wantAttempts int
		wantDetails  bool
		wantSummary  string
		wantErr      error
	}{
		{
			name:         "ok enriches",
			cur:          rowState{Status: model.StatusPending},
			upd:          DetailUpdate{Details: okDetails(), MaxAttempts: 3},
			wantStatus:   model.StatusEnriched,
			wantAttempts: 1,
			wantDetails:  true,
			wantSummary:  "甲公司拟发行股份购买乙公司100%股权",
		},
		{
			name:         "no document fails immediately",
			cur:          rowState{Status: model.StatusPending},
			upd:          DetailUpdate{Details: failed(model.OutcomeNoDocument), MaxAttempts: 3},
			wantStatus:   model.StatusFailed,
			wantAttempts: 1,
			wantDetails:  true,
			wantSummary:  model.NoDocument,
		},
		{
			name:         "unreachable below cap stays pending",
			cur:          rowState{Status: model.StatusPending, Attempts: 1},
			upd:          DetailUpdate{Details: failed(model.OutcomeUnreachable), MaxAttempts: 3},
			wantStatus:   model.StatusPending,
			wantAttempts: 2,
		},
		{
			name:         "unreachable at cap fails",
			cur:          rowState{Status: model.StatusPending, Attempts: 2},
			upd:          DetailUpdate{Details: failed(model.OutcomeUnreachable), MaxAttempts: 3},
			wantStatus:   model.StatusFailed,
			wantAttempts: 3,
			wantDetails:  true,
			wantSummary:  model.DocumentUnreachable,
		},
		{
			name:         "timeout counts attempt",
			cur:          rowState{Status: model.StatusPending},
			upd:          DetailUpdate{Details: failed(model.OutcomeTimeout), MaxAttempts: 1},
			wantStatus:   model.StatusFailed,
			wantAttempts: 1,
			wantDetails:  true,
			wantSummary:  model.ExtractTimeout,
		},
		{
			name:         "unavailable does not count",
			cur:          rowState{Status: model.StatusPending, Attempts: 2},
			upd:          DetailUpdate{Details: failed(model.OutcomeUnavailable), MaxAttempts: 3},
			wantStatus:   model.StatusPending,
			wantAttempts: 2,
		},
		{
			name:         "failed row can be retried",
			cur:          rowState{Status: model.StatusFailed, Attempts: 3},
			upd:          DetailUpdate{Details: okDetails(), MaxAttempts: 3},
			wantStatus:   model.StatusEnriched,
			wantAttempts: 4,
			wantDetails:  true,
			wantSummary:  "甲公司拟发行股份购买乙公司100%股权",
		},
		{
			name:    "enriched row is never rewritten",
			cur:     rowState{Status: model.StatusEnriched, Attempts: 1},
			upd:     DetailUpdate{Details: okDetails(), MaxAttempts: 3},
			wantErr: ErrNotPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := planUpdate(tt.cur, tt.upd)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, p.Status)
			assert.Equal(t, tt.wantAttempts, p.Attempts)
			if !tt.wantDetails {
				assert.Nil(t, p.Details)
				assert.Equal(t, []any{nil, nil, nil, nil, nil, nil}, p.detailArgs())
				return
			}
			require.NotNil(t, p.Details)
			assert.Equal(t, tt.wantSummary, p.Details.Summary)
		})
	}
}

func TestPlanUpdate_FillsUndisclosed(t *testing.T) {
	d := model.DealDetails{Target: "乙公司", Summary: "收购乙公司", Outcome: model.OutcomeOK}
	p, err := planUpdate(rowState{Status: model.StatusPending}, DetailUpdate{Details: d})
	require.NoError(t, err)
	require.NotNil(t, p.Details)
	assert.Equal(t, model.NotDisclosed, p.Details.Acquirer)
	assert.Equal(t, model.NotDisclosed, p.Details.TransactionPrice)
	assert.Equal(t, "乙公司", p.Details.Target)
}

func TestPlanUpdate_Profile(t *testing.T) {
	prof := model.Profile{StockCode: "600000", Industry: "银行", MainBusiness: "吸收存款"}
	p, err := planUpdate(rowState{Status: model.StatusPending}, DetailUpdate{
		Details: model.DealDetails{Outcome: model.OutcomeUnreachable},
		Profile: prof,
	})
	require.NoError(t, err)
	require.NotNil(t, p.Profile)
	assert.Equal(t, "银行", p.Profile.Industry)

	p, err = planUpdate(rowState{Status: model.StatusPending}, DetailUpdate{Details: okDetails()})
	require.NoError(t, err)
	assert.Nil(t, p.Profile)
}

func TestPlanFailure(t *testing.T) {
	p, err := planFailure(rowState{Status: model.StatusPending}, "boom", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, p.Status)
	assert.Equal(t, 1, p.Attempts)
	assert.Equal(t, "boom", p.LastError)
	assert.Nil(t, p.Details)

	p, err = planFailure(rowState{Status: model.StatusPending, Attempts: 2}, "boom", 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, p.Status)
	require.NotNil(t, p.Details)
	assert.True(t, model.IsFailureSentinel(p.Details.Summary))

	_, err = planFailure(rowState{Status: model.StatusEnriched}, "boom", 3)
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestPrepareStubs(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.NormalizedRow{
		{Date: day, Title: "甲 重组预案", StockCode: "600001", CompanyName: "甲", DocURL: "http://x/1.pdf"},
		{Date: day, Title: " 甲 重组预案 ", StockCode: "600001"},
		{Title: "乙 重组草案", StockCode: "", CompanyName: model.MissingValue, DocURL: model.MissingValue},
		{Date: day, Title: "  "},
	}
	stubs, skipped := prepareStubs(day, rows)
	require.Len(t, stubs, 2)
	assert.Equal(t, 2, skipped)

	assert.Equal(t, "2024-05-01", stubs[0].Date)
	assert.Equal(t, "http://x/1.pdf", stubs[0].DocURL)

	assert.Equal(t, "2024-05-01", stubs[1].Date, "undated row takes the fetched day")
	assert.Equal(t, model.MissingValue, stubs[1].StockCode)
	assert.Nil(t, stubs[1].DocURL)
}

func TestAnnouncementQuery(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tail, args := announcementQuery(AnnouncementFilter{
		From:   from,
		Status: model.StatusEnriched,
		Query:  "重组",
		Limit:  10,
		Offset: 20,
	}, dollar, func(t time.Time) any { return t })

	assert.Equal(t,
		" WHERE announcement_date >= $1 AND status = $2 AND announcement_title LIKE $3 ORDER BY announcement_date DESC, id DESC LIMIT $4 OFFSET $5",
		tail)
	assert.Equal(t, []any{from, "enriched", "%重组%", 10, 20}, args)

	tail, args = announcementQuery(AnnouncementFilter{Ascending: true}, questionMark, nil)
	assert.Equal(t, " ORDER BY announcement_date ASC, id ASC LIMIT ?", tail)
	assert.Equal(t, []any{defaultListLimit}, args)
}

func TestRunQuery(t *testing.T) {
	tail, args := runQuery(RunFilter{Kind: model.RunKindNightly, Limit: 5}, dollar)
	assert.Equal(t, " WHERE kind = $1 ORDER BY started_at DESC LIMIT $2", tail)
	assert.Equal(t, []any{"nightly", 5}, args)
}

func TestLegacyStatusSQL_CoversSentinels(t *testing.T) {
	stmts := legacyStatusSQL()
	require.Len(t, stmts, 2)
	for _, s := range model.FailureSentinels() {
		assert.Contains(t, stmts[0], "'"+s+"'")
	}
	assert.Contains(t, stmts[1], "'"+model.NotDisclosed+"'")
}
