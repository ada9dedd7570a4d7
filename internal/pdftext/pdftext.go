// Package pdftext turns downloaded announcement PDFs into plain text.
package pdftext

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mna-tracker/internal/config"
)

// DefaultMaxPages bounds how much of a filing is converted.
const DefaultMaxPages = 10

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates the pdftotext-backed Extractor from config.
func NewExtractor(cfg config.ExtractConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath, cfg.MaxPages)
}

// PdfToText extracts text from PDFs using the poppler pdftotext CLI.
type PdfToText struct {
	binPath  string
	maxPages int
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is resolved from PATH. A non-positive maxPages selects
// DefaultMaxPages.
func NewPdfToText(binPath string, maxPages int) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &PdfToText{binPath: binPath, maxPages: maxPages}
}

func (p *PdfToText) args(pdfPath string) []string {
	return []string{"-f", "1", "-l", strconv.Itoa(p.maxPages), "-layout", "-enc", "UTF-8", pdfPath, "-"}
}

// ExtractText runs pdftotext over the first pages of pdfPath and returns
// the text with whitespace collapsed.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrapf(ctx.Err(), "pdftext: pdftotext cancelled for %s", pdfPath)
		}
		return "", eris.Wrapf(err, "pdftext: pdftotext failed for %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}

	return Collapse(stdout.String()), nil
}

// Collapse replaces every run of whitespace with a single space. Runs that
// sit between two CJK characters are dropped, since layout mode breaks
// Chinese sentences across lines.
func Collapse(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	var prev rune
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = sb.Len() > 0
			continue
		}
		if pendingSpace {
			if !(isCJK(prev) && isCJK(r)) {
				sb.WriteByte(' ')
			}
			pendingSpace = false
		}
		sb.WriteRune(r)
		prev = r
	}
	return sb.String()
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.In(r, unicode.Hiragana, unicode.Katakana) ||
		(r >= '　' && r <= '〿') || (r >= '＀' && r <= '￯')
}
