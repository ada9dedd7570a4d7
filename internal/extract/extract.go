// Package extract pulls deal details out of filed announcement documents.
// Extraction never fails loudly: every problem is encoded as an outcome and
// a failure sentinel on the returned details.
package extract

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mna-tracker/internal/config"
	"github.com/sells-group/mna-tracker/internal/fetcher"
	"github.com/sells-group/mna-tracker/internal/model"
	"github.com/sells-group/mna-tracker/internal/pdftext"
	"github.com/sells-group/mna-tracker/pkg/anthropic"
	"github.com/sells-group/mna-tracker/pkg/gemini"
)

// DefaultTimeout bounds download, conversion and parsing of one document.
const DefaultTimeout = 30 * time.Second

// Extractor downloads a document, converts it to text and hands the text
// to a Strategy.
type Extractor struct {
	fetcher  fetcher.Fetcher
	text     pdftext.Extractor
	strategy Strategy
	timeout  time.Duration
	tempDir  string
	log      *zap.Logger
}

// Options configure an Extractor.
type Options struct {
	Timeout time.Duration
	// TempDir holds downloaded documents; empty uses the OS default.
	TempDir string
}

// New creates an Extractor.
func New(f fetcher.Fetcher, text pdftext.Extractor, strategy Strategy, opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if strategy == nil {
		strategy = NewPatternStrategy()
	}
	return &Extractor{
		fetcher:  f,
		text:     text,
		strategy: strategy,
		timeout:  opts.Timeout,
		tempDir:  opts.TempDir,
		log:      zap.L().With(zap.String("component", "extract"), zap.String("strategy", strategy.Name())),
	}
}

// StrategyName returns the configured strategy name.
func (e *Extractor) StrategyName() string { return e.strategy.Name() }

// Extract returns the deal details for the document at docURL. It never
// returns an error; Outcome says what happened and failed outcomes carry
// their sentinel in every derived field.
func (e *Extractor) Extract(ctx context.Context, docURL string, hint Hint) model.DealDetails {
	name := e.strategy.Name()
	docURL = strings.TrimSpace(docURL)
	if model.IsMissing(docURL) {
		return model.FailedDetails(model.OutcomeNoDocument, name)
	}
	if !Available(e.strategy) {
		e.log.Warn("extraction strategy not configured", zap.String("title", hint.Title))
		return model.FailedDetails(model.OutcomeUnavailable, name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	log := e.log.With(zap.String("doc_url", docURL), zap.String("title", hint.Title))

	text, outcome, err := e.readDocument(ctx, docURL)
	if err != nil {
		log.Warn("document processing failed", zap.String("outcome", string(outcome)), zap.Error(err))
		return model.FailedDetails(outcome, name)
	}

	d, err := e.strategy.Parse(ctx, text, hint)
	if err != nil {
		outcome = classify(ctx, err, model.OutcomeUnreadable)
		log.Warn("strategy parse failed", zap.String("outcome", string(outcome)), zap.Error(err))
		return model.FailedDetails(outcome, name)
	}

	d = d.FillUndisclosed()
	if !d.AmountCNY.Valid {
		d.AmountCNY = ParseAmountCNY(d.TransactionPrice)
	}
	d.Outcome = model.OutcomeOK
	d.Strategy = name
	log.Debug("document extracted", zap.String("transaction_type", d.TransactionType))
	return d
}

// readDocument downloads docURL to a temp file and converts it to text.
func (e *Extractor) readDocument(ctx context.Context, docURL string) (string, model.ExtractOutcome, error) {
	f, err := os.CreateTemp(e.tempDir, "mna-doc-*.pdf")
	if err != nil {
		return "", model.OutcomeUnavailable, eris.Wrap(err, "extract: create temp file")
	}
	path := f.Name()
	f.Close() //nolint:errcheck
	defer os.Remove(path) //nolint:errcheck

	n, err := e.fetcher.DownloadToFile(ctx, docURL, path)
	if err != nil {
		return "", classify(ctx, err, model.OutcomeUnreachable), eris.Wrap(err, "extract: download")
	}
	if n == 0 {
		return "", model.OutcomeUnreadable, eris.New("extract: empty document")
	}

	text, err := e.text.ExtractText(ctx, path)
	if err != nil {
		return "", classify(ctx, err, model.OutcomeUnreadable), eris.Wrap(err, "extract: convert")
	}
	if strings.TrimSpace(text) == "" {
		return "", model.OutcomeUnreadable, eris.New("extract: document has no text layer")
	}
	return text, model.OutcomeOK, nil
}

// classify maps an error to an outcome, preferring timeout when the
// per-document deadline fired.
func classify(ctx context.Context, err error, fallback model.ExtractOutcome) model.ExtractOutcome {
	switch {
	case errors.Is(err, ErrUnavailable):
		return model.OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return model.OutcomeTimeout
	default:
		return fallback
	}
}

// NewStrategy builds the strategy named by cfg.Extract.Strategy. Missing
// credentials produce an unavailable strategy, not an error.
func NewStrategy(ctx context.Context, cfg *config.Config) (Strategy, error) {
	switch cfg.Extract.Strategy {
	case "", "pattern":
		return NewPatternStrategy(), nil
	case "anthropic":
		var client anthropic.Client
		if cfg.Anthropic.Key != "" {
			client = anthropic.NewClient(cfg.Anthropic.Key, option.WithMaxRetries(0))
		}
		return NewModelStrategy(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Extract.MaxChars), nil
	case "gemini":
		var client gemini.Client
		if cfg.Gemini.Key != "" {
			c, err := gemini.NewClient(ctx, cfg.Gemini.Key, gemini.Options{})
			if err != nil {
				return nil, eris.Wrap(err, "extract: gemini client")
			}
			client = c
		}
		return NewGeminiStrategy(client, cfg.Gemini.Model, cfg.Extract.MaxChars), nil
	default:
		return nil, eris.Errorf("extract: unknown strategy %q", cfg.Extract.Strategy)
	}
}
