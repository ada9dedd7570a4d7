package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/mna-tracker/internal/extract"
	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/source"
	"github.com/sells-group/mna-tracker/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertStubs(ctx context.Context, day time.Time, rows []model.NormalizedRow, policy store.ConflictPolicy) (store.UpsertResult, error) {
	args := m.Called(ctx, day, rows, policy)
	return args.Get(0).(store.UpsertResult), args.Error(1)
}

func (m *mockStore) SelectPending(ctx context.Context, limit int, exclude []int64) ([]model.Announcement, error) {
	args := m.Called(ctx, limit, exclude)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Announcement), args.Error(1)
}

func (m *mockStore) UpdateDetails(ctx context.Context, key model.Key, upd store.DetailUpdate) (model.EnrichStatus, error) {
	args := m.Called(ctx, key, upd)
	return args.Get(0).(model.EnrichStatus), args.Error(1)
}

func (m *mockStore) RecordFailure(ctx context.Context, key model.Key, msg string, maxAttempts int) (model.EnrichStatus, error) {
	args := m.Called(ctx, key, msg, maxAttempts)
	return args.Get(0).(model.EnrichStatus), args.Error(1)
}

func (m *mockStore) GetAnnouncement(ctx context.Context, key model.Key) (*model.Announcement, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Announcement), args.Error(1)
}

func (m *mockStore) ListAnnouncements(ctx context.Context, filter store.AnnouncementFilter) ([]model.Announcement, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Announcement), args.Error(1)
}

func (m *mockStore) CountByStatus(ctx context.Context) (map[model.EnrichStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.EnrichStatus]int), args.Error(1)
}

func (m *mockStore) StartRun(ctx context.Context, run *model.PipelineRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) CompleteRun(ctx context.Context, run *model.PipelineRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.PipelineRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PipelineRun), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Fetch(ctx context.Context, kw source.KeywordPolicy, start, end time.Time) (source.FetchResult, error) {
	args := m.Called(ctx, kw, start, end)
	return args.Get(0).(source.FetchResult), args.Error(1)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, docURL string, hint extract.Hint) model.DealDetails {
	args := m.Called(ctx, docURL, hint)
	return args.Get(0).(model.DealDetails)
}

// --- Profile Mock ---

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) Resolve(ctx context.Context, code string) model.Profile {
	args := m.Called(ctx, code)
	return args.Get(0).(model.Profile)
}
