// Package source lists daily A-share announcements from interchangeable
// upstream providers and turns them into normalized, keyword-filtered rows.
package source

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sells-group/mna-tracker/internal/model"
)

// Provider fetches the raw announcement list for a single calendar day.
// Implementations return the upstream's own column names; they never map
// columns onto the internal schema.
type Provider interface {
	Name() string
	FetchDay(ctx context.Context, day time.Time) (*model.RawTable, error)
	// BaseURL prefixes relative document paths in this provider's rows.
	BaseURL() string
}

// tableBuilder accumulates gjson objects into a RawTable, recording column
// names in first-seen order.
type tableBuilder struct {
	table *model.RawTable
	seen  map[string]bool
}

func newTableBuilder(p Provider, day time.Time) *tableBuilder {
	return &tableBuilder{
		table: &model.RawTable{
			Source:  p.Name(),
			BaseURL: p.BaseURL(),
			Day:     model.Day(day),
		},
		seen: make(map[string]bool),
	}
}

// addObject copies the scalar members of obj into a new row, then applies
// extra values on top.
func (b *tableBuilder) addObject(obj gjson.Result, extra map[string]any) {
	row := make(model.RawRow)
	obj.ForEach(func(k, v gjson.Result) bool {
		if v.IsObject() || v.IsArray() {
			return true
		}
		b.set(row, k.String(), v.Value())
		return true
	})
	for k, v := range extra {
		b.set(row, k, v)
	}
	b.table.Rows = append(b.table.Rows, row)
}

func (b *tableBuilder) set(row model.RawRow, col string, v any) {
	if !b.seen[col] {
		b.seen[col] = true
		b.table.Columns = append(b.table.Columns, col)
	}
	row[col] = v
}

// sleepCtx pauses for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
