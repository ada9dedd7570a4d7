package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status RunStatus
		want   string
	}{
		{RunStatusRunning, "running"},
		{RunStatusComplete, "complete"},
		{RunStatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
		})
	}
}

func TestRunKindValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind RunKind
		want string
	}{
		{RunKindNightly, "nightly"},
		{RunKindBackfill, "backfill"},
		{RunKindIngest, "ingest"},
		{RunKindEnrich, "enrich"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.kind))
		})
	}
}

func TestRunCounters_Add(t *testing.T) {
	t.Parallel()

	c := RunCounters{Fetched: 3, Inserted: 2}
	c.Add(RunCounters{Fetched: 1, Inserted: 1, Backfilled: 1, DaysOK: 2, DaysFailed: 1, Enriched: 4})

	assert.Equal(t, RunCounters{Fetched: 4, Inserted: 3, Backfilled: 1, DaysOK: 2, DaysFailed: 1, Enriched: 4}, c)
}

func TestFailedProfile(t *testing.T) {
	t.Parallel()

	p := FailedProfile("600000")
	assert.True(t, p.Failed())
	assert.Equal(t, "600000", p.StockCode)
	assert.Equal(t, ProfileLookupFailed, p.Industry)
	assert.False(t, Profile{Industry: "银行", MainBusiness: ProfileLookupFailed}.Failed())
}
