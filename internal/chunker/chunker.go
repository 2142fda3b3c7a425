// Package chunker splits extracted text into retrieval-sized chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxLen is the chunk size used when the caller passes a non-positive limit.
	DefaultMaxLen = 1200

	// DefaultMinLen is the shortest sentence-built chunk that is kept.
	DefaultMinLen = 20
)

// paragraphBreak matches two or more newlines; the blank lines may hold spaces or tabs.
var paragraphBreak = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+`)

// Chunker splits text at paragraph boundaries, falling back to sentence
// boundaries for paragraphs longer than MaxLen. Chunks never overlap.
type Chunker struct {
	maxLen int
	minLen int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxLen sets the chunk length limit in characters. Non-positive values
// keep the default.
func WithMaxLen(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

// WithMinLen sets the length below which sentence-built chunks are dropped.
func WithMinLen(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.minLen = n
		}
	}
}

// New creates a Chunker with the default limits.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxLen: DefaultMaxLen,
		minLen: DefaultMinLen,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxLen returns the configured chunk length limit.
func (c *Chunker) MaxLen() int {
	return c.maxLen
}

// Split is shorthand for New(WithMaxLen(maxLen)).Split(text).
func Split(text string, maxLen int) []string {
	return New(WithMaxLen(maxLen)).Split(text)
}

// Split returns the chunks of text in input order.
//
// A paragraph that fits within the limit is emitted as-is (trimmed). Longer
// paragraphs are cut into sentences which are packed greedily; packed chunks
// shorter than the minimum length are discarded. A single sentence longer
// than the limit becomes its own oversized chunk.
func (c *Chunker) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	chunks := make([]string, 0)
	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if length(para) <= c.maxLen {
			chunks = append(chunks, para)
			continue
		}

		for _, chunk := range c.pack(splitSentences(para)) {
			if length(chunk) < c.minLen {
				continue
			}
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// pack greedily joins sentences with single spaces while they fit.
func (c *Chunker) pack(sentences []string) []string {
	var out []string
	var buf string

	for _, s := range sentences {
		switch {
		case buf == "":
			buf = s
		case length(buf)+1+length(s) > c.maxLen:
			out = append(out, strings.TrimSpace(buf))
			buf = s
		default:
			buf += " " + s
		}
	}
	if strings.TrimSpace(buf) != "" {
		out = append(out, strings.TrimSpace(buf))
	}

	return out
}

// splitSentences cuts after '.', '!' or '?' when followed by whitespace.
func splitSentences(para string) []string {
	var sentences []string
	start := 0

	for i, r := range para {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next >= len(para) {
			break
		}
		nr, _ := utf8.DecodeRuneInString(para[next:])
		if !unicode.IsSpace(nr) {
			continue
		}
		if s := strings.TrimSpace(para[start:next]); s != "" {
			sentences = append(sentences, s)
		}
		start = next
	}

	if s := strings.TrimSpace(para[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}
