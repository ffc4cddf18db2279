// Package chunk splits document bodies into overlapping token-bounded
// chunks for embedding. Splitting is purely a function of the input text and
// parameters — no randomness, no clock, no state — so re-ingesting an
// unchanged document always yields the identical chunk sequence.
//
// A token is a maximal run of non-whitespace characters together with the
// whitespace that follows it (leading whitespace forms a token of its own).
// Because tokens partition the body exactly, concatenating the chunks after
// dropping each chunk's leading overlap tokens reconstructs the original
// body byte-for-byte.
package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Defaults for chunking parameters.
const (
	// DefaultTokenBudget is the default maximum number of tokens per chunk.
	DefaultTokenBudget = 200
	// DefaultOverlap is the default number of tokens shared between
	// consecutive chunks.
	DefaultOverlap = 20
)

// Chunking parameter errors. Both are input errors: rejected before any
// work is done and never worth retrying.
var (
	// ErrEmptyBody is returned when the document body is empty.
	ErrEmptyBody = errors.New("chunk: document body is empty")
	// ErrOverlapTooLarge is returned when the overlap is not strictly
	// smaller than the token budget — such a configuration would never
	// make progress through the body.
	ErrOverlapTooLarge = errors.New("chunk: overlap must be strictly smaller than token budget")
)

// Params controls chunk sizing.
type Params struct {
	// TokenBudget is the maximum number of tokens per chunk. Zero selects
	// DefaultTokenBudget.
	TokenBudget int

	// Overlap is the number of tokens each chunk after the first shares
	// with the end of its predecessor. Zero is valid (no overlap). A
	// negative value selects DefaultOverlap.
	Overlap int
}

// resolve applies defaults and validates the parameters.
func (p Params) resolve() (Params, error) {
	if p.TokenBudget == 0 {
		p.TokenBudget = DefaultTokenBudget
	}
	if p.TokenBudget < 0 {
		return p, fmt.Errorf("chunk: token budget must be positive, got %d", p.TokenBudget)
	}
	if p.Overlap < 0 {
		p.Overlap = DefaultOverlap
	}
	if p.Overlap >= p.TokenBudget {
		return p, fmt.Errorf("%w: overlap %d, budget %d", ErrOverlapTooLarge, p.Overlap, p.TokenBudget)
	}
	return p, nil
}

// Split divides body into chunks of at most TokenBudget tokens, each chunk
// after the first beginning Overlap tokens before its predecessor's end.
// The final chunk may be smaller than the budget but trailing content is
// never dropped, and no chunk is ever empty.
func Split(body string, p Params) ([]string, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}
	p, err := p.resolve()
	if err != nil {
		return nil, err
	}

	toks := tokenize(body)
	step := p.TokenBudget - p.Overlap

	var chunks []string
	for start := 0; start < len(toks); start += step {
		end := start + p.TokenBudget
		if end > len(toks) {
			end = len(toks)
		}
		chunks = append(chunks, strings.Join(toks[start:end], ""))
		if end == len(toks) {
			break
		}
	}

	return chunks, nil
}

// TokenCount returns the number of tokens Split would partition text into.
func TokenCount(text string) int {
	return len(tokenize(text))
}

// tokenize partitions body into tokens whose concatenation is exactly body.
// Each token is a non-whitespace run plus its trailing whitespace; leading
// whitespace becomes a token with an empty word part.
func tokenize(body string) []string {
	var toks []string
	for i := 0; i < len(body); {
		start := i
		for i < len(body) && !isSpace(body[i]) {
			i++
		}
		for i < len(body) && isSpace(body[i]) {
			i++
		}
		toks = append(toks, body[start:i])
	}
	return toks
}

// isSpace reports whether b is ASCII whitespace. Multi-byte unicode spaces
// are treated as word bytes, which keeps tokenization byte-exact.
func isSpace(b byte) bool {
	return b < unicode.MaxASCII && unicode.IsSpace(rune(b))
}
