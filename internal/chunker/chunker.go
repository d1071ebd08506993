// Package chunker splits documents into overlapping, size bounded chunks.
package chunker

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"docqa/internal/helper"
	"docqa/internal/models"
)

// Separators in order of preference: paragraph, line, sentence, word, character.
var Separators = []string{"\n\n", "\n", ". ", "? ", "! ", " ", ""}

type Chunker struct {
	size    int
	overlap int
}

// span is a byte range of the document content with its length in runes.
type span struct {
	start, end int
	runes      int
}

// New validates the settings before any text is processed.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", models.ErrConfiguration, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than size %d", models.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split chunks every document in order. Chunks of one document are contiguous
// in the output and Ordinal numbers them across the whole batch.
func (c *Chunker) Split(docs []models.Document) []models.Chunk {
	var out []models.Chunk
	for _, doc := range docs {
		out = append(out, c.splitDocument(doc, len(out))...)
	}
	log.Debug().Int("documents", len(docs)).Int("chunks", len(out)).Msg("Split documents")
	return out
}

func (c *Chunker) splitDocument(doc models.Document, ordinal int) []models.Chunk {
	content := doc.Content
	whole := trim(content, span{start: 0, end: len(content)})
	if whole.end <= whole.start {
		return nil
	}

	var spans []span
	if utf8.RuneCountInString(content[whole.start:whole.end]) <= c.size {
		spans = []span{whole}
	} else {
		spans = c.split(content, 0, len(content), Separators)
	}

	starts, ends := &runeCursor{s: content}, &runeCursor{s: content}
	chunks := make([]models.Chunk, 0, len(spans))
	for i, sp := range spans {
		text := content[sp.start:sp.end]
		chunks = append(chunks, models.Chunk{
			ID:   helper.HashText(doc.Metadata.SourcePath, strconv.Itoa(doc.Metadata.PageNumber), strconv.Itoa(i), text),
			Text: text,
			Metadata: models.ChunkMetadata{
				Metadata:    doc.Metadata,
				ChunkIndex:  i,
				StartOffset: starts.at(sp.start),
				EndOffset:   ends.at(sp.end),
				Ordinal:     ordinal + i,
			},
		})
	}
	return chunks
}

// split cuts content[lo:hi] on the first separator it contains. Pieces that
// still exceed the size are split again with the remaining separators.
func (c *Chunker) split(content string, lo, hi int, seps []string) []span {
	sep, rest := seps[len(seps)-1], []string(nil)
	for i, s := range seps {
		if s == "" || strings.Contains(content[lo:hi], s) {
			sep, rest = s, seps[i+1:]
			break
		}
	}
	sepRunes := utf8.RuneCountInString(sep)

	var out, good []span
	for _, u := range units(content, lo, hi, sep) {
		if u.runes <= c.size {
			good = append(good, u)
			continue
		}
		out = append(out, c.merge(content, good, sepRunes)...)
		good = nil
		if len(rest) == 0 {
			out = append(out, u)
			continue
		}
		out = append(out, c.split(content, u.start, u.end, rest)...)
	}
	return append(out, c.merge(content, good, sepRunes)...)
}

// merge packs consecutive units into chunks of at most size runes, counting
// the separator between every pair. Each new chunk starts with the longest
// tail of the previous one that fits in overlap runes.
func (c *Chunker) merge(content string, units []span, sepRunes int) []span {
	var out, cur []span
	total := 0
	emit := func() {
		if len(cur) == 0 {
			return
		}
		if sp := trim(content, span{start: cur[0].start, end: cur[len(cur)-1].end}); sp.end > sp.start {
			out = append(out, sp)
		}
	}

	for _, u := range units {
		if len(cur) > 0 && total+sepRunes+u.runes > c.size {
			emit()
			for len(cur) > 0 && (total > c.overlap || total+sepRunes+u.runes > c.size) {
				total -= cur[0].runes
				if len(cur) > 1 {
					total -= sepRunes
				}
				cur = cur[1:]
			}
		}
		if len(cur) > 0 {
			total += sepRunes
		}
		total += u.runes
		cur = append(cur, u)
	}
	emit()
	return out
}

func units(content string, lo, hi int, sep string) []span {
	var out []span
	if sep == "" {
		for i := lo; i < hi; {
			_, w := utf8.DecodeRuneInString(content[i:hi])
			out = append(out, span{start: i, end: i + w, runes: 1})
			i += w
		}
		return out
	}
	start := lo
	for {
		idx := strings.Index(content[start:hi], sep)
		if idx < 0 {
			break
		}
		out = append(out, span{start: start, end: start + idx, runes: utf8.RuneCountInString(content[start : start+idx])})
		start += idx + len(sep)
	}
	return append(out, span{start: start, end: hi, runes: utf8.RuneCountInString(content[start:hi])})
}

func trim(content string, sp span) span {
	for sp.start < sp.end {
		r, w := utf8.DecodeRuneInString(content[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.start += w
	}
	for sp.end > sp.start {
		r, w := utf8.DecodeLastRuneInString(content[sp.start:sp.end])
		if !unicode.IsSpace(r) {
			break
		}
		sp.end -= w
	}
	return sp
}

// runeCursor converts increasing byte offsets to rune offsets.
type runeCursor struct {
	s    string
	b, r int
}

func (rc *runeCursor) at(b int) int {
	if b < rc.b {
		rc.b, rc.r = 0, 0
	}
	rc.r += utf8.RuneCountInString(rc.s[rc.b:b])
	rc.b = b
	return rc.r
}
