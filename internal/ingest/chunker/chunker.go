package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tablemind/rulebook-backend/internal/ingest/extractor"
)

const (
	// DefaultMaxWords is the word budget per chunk. A chunk may exceed it
	// only when a single paragraph is longer than the budget; paragraphs are
	// never split mid-sentence.
	DefaultMaxWords = 220
	// DefaultOverlapWords is the tail of each sealed chunk carried into the
	// next one so rules that straddle a boundary stay answerable.
	DefaultOverlapWords = 60

	// Paragraphs at or under this word count are layout noise (page numbers,
	// running headers) and are dropped before packing.
	minParagraphWords = 6
)

// Chunk is one retrieval unit produced from a rulebook. Index is the
// 1-based position within the document, in page order then paragraph order.
type Chunk struct {
	Index       int
	Text        string
	WordCount   int
	PageStart   int
	PageEnd     int
	SectionPath string
}

type Options struct {
	MaxWords     int
	OverlapWords int
}

func (o Options) withDefaults() Options {
	if o.MaxWords <= 0 {
		o.MaxWords = DefaultMaxWords
	}
	if o.OverlapWords < 0 {
		o.OverlapWords = 0
	}
	// Overlap must stay strictly under the budget or packing never advances.
	if o.OverlapWords >= o.MaxWords {
		o.OverlapWords = o.MaxWords - 1
	}
	return o
}

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// Paragraphs splits page text on blank lines, collapses internal whitespace
// to single spaces, and drops short noise paragraphs.
func Paragraphs(pageText string) []string {
	var out []string
	for _, raw := range blankLineRe.Split(pageText, -1) {
		words := strings.Fields(raw)
		if len(words) < minParagraphWords {
			continue
		}
		out = append(out, strings.Join(words, " "))
	}
	return out
}

type pagedParagraph struct {
	text string
	page int
}

// Split greedily packs paragraphs into word-budgeted chunks. When adding a
// paragraph would exceed the budget, the current chunk is sealed and its
// last OverlapWords words seed the next one. Ordering follows the document:
// pages in order, paragraphs in page order.
func Split(pages []extractor.Page, opts Options) []Chunk {
	opts = opts.withDefaults()

	var paras []pagedParagraph
	for _, p := range pages {
		for _, text := range Paragraphs(p.Text) {
			paras = append(paras, pagedParagraph{text: text, page: p.Number})
		}
	}

	var (
		chunks []Chunk
		buf    []pagedParagraph
		wcount int
	)

	seal := func() {
		parts := make([]string, 0, len(buf))
		pageStart, pageEnd := buf[0].page, buf[0].page
		for _, p := range buf {
			parts = append(parts, p.text)
			if p.page < pageStart {
				pageStart = p.page
			}
			if p.page > pageEnd {
				pageEnd = p.page
			}
		}
		text := strings.Join(parts, " ")
		chunks = append(chunks, Chunk{
			Index:       len(chunks) + 1,
			Text:        text,
			WordCount:   len(strings.Fields(text)),
			PageStart:   pageStart,
			PageEnd:     pageEnd,
			SectionPath: GuessSection(text),
		})

		if opts.OverlapWords > 0 {
			words := strings.Fields(text)
			start := len(words) - opts.OverlapWords
			if start < 0 {
				start = 0
			}
			tail := strings.Join(words[start:], " ")
			buf = []pagedParagraph{{text: tail, page: pageEnd}}
			wcount = len(words) - start
		} else {
			buf = nil
			wcount = 0
		}
	}

	for _, p := range paras {
		w := len(strings.Fields(p.text))
		if wcount+w > opts.MaxWords && len(buf) > 0 {
			seal()
		}
		buf = append(buf, p)
		wcount += w
	}
	if len(buf) > 0 {
		seal()
	}
	return chunks
}

var (
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*\s+\S+`)
	titleHeadingRe    = regexp.MustCompile(`^[A-Z][A-Za-z0-9\s\-]{3,}$`)
)

// GuessSection inspects the first few lines of chunk text for something
// heading-shaped: a numbered heading like "4.2 Combat" or a short title
// line. It is a best-effort label; "Body" means nothing matched.
func GuessSection(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 6 {
		lines = lines[:6]
	}
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		if numberedHeadingRe.MatchString(ln) || titleHeadingRe.MatchString(ln) {
			return truncateRunes(ln, 120)
		}
	}
	return "Body"
}

// truncateRunes shortens s to at most n runes. Cutting on a rune boundary
// keeps the result valid UTF-8, which Postgres text columns require.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
