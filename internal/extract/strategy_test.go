package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mna-tracker/internal/resilience"
	"github.com/sells-group/mna-tracker/pkg/anthropic"
	"github.com/sells-group/mna-tracker/pkg/gemini"
)

// mockAnthropic implements anthropic.Client.
type mockAnthropic struct {
	mock.Mock
}

func (m *mockAnthropic) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// mockGemini implements gemini.Client.
type mockGemini struct {
	mock.Mock
}

func (m *mockGemini) GenerateJSON(ctx context.Context, req gemini.Request) (*gemini.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.Response), args.Error(1)
}

const reply = "好的，结果如下：\n" +
	`{"transaction_type":"发行股份购买资产","acquirer":"甲公司","target_company":"乙公司",` +
	`"transaction_price":"2亿元","summary":"甲公司发行股份购买乙公司100%股权"}` + "\n以上。"

func TestModelStrategy_Parse(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.System == instruction &&
			len(req.Messages) == 1 &&
			strings.Contains(req.Messages[0].Content, "公告标题：重组预案") &&
			*req.Temperature == 0
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
	}, nil)

	s := NewModelStrategy(client, "claude-haiku-4-5-20251001", 0, 100)
	d, err := s.Parse(context.Background(), "正文", Hint{Title: "重组预案", CompanyName: "甲公司"})
	require.NoError(t, err)
	assert.Equal(t, "发行股份购买资产", d.TransactionType)
	assert.Equal(t, "甲公司", d.Acquirer)
	assert.Equal(t, "乙公司", d.Target)
	assert.Equal(t, "2亿元", d.TransactionPrice)
	client.AssertExpectations(t)
}

func TestModelStrategy_Errors(t *testing.T) {
	_, err := NewModelStrategy(nil, "m", 0, 0).Parse(context.Background(), "x", Hint{})
	assert.True(t, errors.Is(err, ErrUnavailable))

	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))
	_, err = NewModelStrategy(client, "m", 0, 0).Parse(context.Background(), "x", Hint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: anthropic request")
}

func TestModelStrategy_RetriesTransientErrors(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Once()
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
	}, nil).Once()

	s := NewModelStrategy(client, "m", 0, 0)
	s.retry.InitialBackoff = time.Millisecond
	d, err := s.Parse(context.Background(), "正文", Hint{Title: "重组预案"})
	require.NoError(t, err)
	assert.Equal(t, "乙公司", d.Target)
	client.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestModelStrategy_PermanentErrorNotRetried(t *testing.T) {
	client := new(mockAnthropic)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key"))

	s := NewModelStrategy(client, "m", 0, 0)
	s.retry.InitialBackoff = time.Millisecond
	_, err := s.Parse(context.Background(), "正文", Hint{})
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestGeminiStrategy_RetryGivesUp(t *testing.T) {
	client := new(mockGemini)
	client.On("GenerateJSON", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("unavailable"), 503))

	s := NewGeminiStrategy(client, "gemini-2.5-flash", 0)
	s.retry.InitialBackoff = time.Millisecond
	_, err := s.Parse(context.Background(), "正文", Hint{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: gemini request")
	client.AssertNumberOfCalls(t, "GenerateJSON", 3)
}

func TestGeminiStrategy_Parse(t *testing.T) {
	client := new(mockGemini)
	client.On("GenerateJSON", mock.Anything, mock.MatchedBy(func(req gemini.Request) bool {
		return req.Model == "gemini-2.5-flash" && req.Schema != nil && req.System == instruction
	})).Return(&gemini.Response{Text: reply}, nil)

	d, err := NewGeminiStrategy(client, "gemini-2.5-flash", 0).Parse(context.Background(), "正文", Hint{})
	require.NoError(t, err)
	assert.Equal(t, "乙公司", d.Target)
	client.AssertExpectations(t)

	_, err = NewGeminiStrategy(nil, "m", 0).Parse(context.Background(), "x", Hint{})
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "wrapped", in: reply},
		{name: "bare", in: `{"summary":"未披露","acquirer":"甲"}`},
		{name: "no object", in: "无法识别", wantErr: true},
		{name: "malformed", in: `{"summary": "x",}`, wantErr: true},
		{name: "no fields", in: `{"foo":"bar"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseReply(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "甲乙", truncateRunes("甲乙丙", 2))
	assert.Equal(t, "甲乙丙", truncateRunes("甲乙丙", 3))
	assert.Equal(t, "甲乙丙", truncateRunes("甲乙丙", 0))

	prompt := buildPrompt(strings.Repeat("字", 50), Hint{Title: "t", CompanyName: "c", StockCode: "000001"}, 10)
	assert.Contains(t, prompt, "c（000001）")
	assert.Contains(t, prompt, strings.Repeat("字", 10))
	assert.NotContains(t, prompt, strings.Repeat("字", 11))
}
