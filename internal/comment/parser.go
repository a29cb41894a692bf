// Package comment extracts structured fields from free-text grading comments.
package comment

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/width"
)

var (
	// ErrMalformed is returned for text that cannot be read at all.
	ErrMalformed = eris.New("comment: malformed text")
	// ErrOutOfRange is returned when a score is found but is not a valid
	// fraction of its total.
	ErrOutOfRange = eris.New("comment: score out of range")
)

// DefaultMaxLength bounds the text the parser will look at.
const DefaultMaxLength = 64 * 1024

// Result is what the parser could read from a comment. Score is nil when the
// comment carries no score.
type Result struct {
	Score *int
	// Total is the denominator as written ("85/100" → 100), nil when absent.
	Total   *int
	Verdict string
}

// Parser reads scores out of comments like "Score: 85/100 ..." or
// "评分：85分".
type Parser struct {
	maxLen int
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxLength overrides DefaultMaxLength.
func WithMaxLength(n int) Option {
	return func(p *Parser) { p.maxLen = n }
}

// NewParser creates a Parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{maxLen: DefaultMaxLength}
	for _, o := range opts {
		o(p)
	}
	return p
}

var (
	scorePattern = regexp.MustCompile(
		`(?i)(?:score|rating|grade|评分|得分|分数|总分)\s*[:=]?\s*(\d{1,4})(?:\s*(?:/|out of)\s*(\d{1,4}))?`,
	)
	verdictPattern = regexp.MustCompile(`(?im)^\s*(?:verdict|评价|总评)\s*[:=]\s*(.+?)\s*$`)
)

// Parse extracts a Result from text. Text with no recognizable score yields
// a Result with a nil Score and no error.
func (p *Parser) Parse(text string) (*Result, error) {
	if !utf8.ValidString(text) {
		return nil, eris.Wrap(ErrMalformed, "invalid utf-8")
	}
	if p.maxLen > 0 && len(text) > p.maxLen {
		return nil, eris.Wrapf(ErrMalformed, "length %d exceeds %d", len(text), p.maxLen)
	}

	// Fold full-width digits and punctuation ("８５／１００", "：") to ASCII.
	norm := width.Fold.String(text)

	res := &Result{}
	if m := verdictPattern.FindStringSubmatch(norm); m != nil {
		res.Verdict = m[1]
	}

	m := scorePattern.FindStringSubmatch(norm)
	if m == nil {
		return res, nil
	}

	raw, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, eris.Wrapf(ErrMalformed, "score %q", m[1])
	}
	if m[2] == "" {
		if raw > 100 {
			return nil, eris.Wrapf(ErrOutOfRange, "score %d without total", raw)
		}
		res.Score = &raw
		return res, nil
	}

	total, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, eris.Wrapf(ErrMalformed, "total %q", m[2])
	}
	if total == 0 || raw > total {
		return nil, eris.Wrapf(ErrOutOfRange, "%d/%d", raw, total)
	}
	res.Total = &total

	score := raw
	if total != 100 {
		score = int(math.Round(float64(raw) * 100 / float64(total)))
	}
	res.Score = &score
	return res, nil
}

// HasText reports whether text has any non-whitespace content.
func HasText(text string) bool {
	return strings.TrimSpace(text) != ""
}
