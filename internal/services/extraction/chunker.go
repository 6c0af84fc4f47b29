package extraction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk is one immutable extraction unit. Index and Total let the merge
// stage preserve source order regardless of completion order.
type Chunk struct {
	Index    int
	Total    int
	Text     string
	CacheKey string
}

// Chunker splits reduced text into bounded units for parallel extraction
type Chunker struct {
	chunkSize int
}

// NewChunker creates a chunker with the given maximum characters per chunk
func NewChunker(chunkSize int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 4000
	}
	return &Chunker{chunkSize: chunkSize}
}

// Split cuts text into chunks, preferring section boundaries (markdown
// headings), re-splitting oversize sections on line boundaries. Cache keys
// are derived from chunk text plus the extraction goal and model identity.
func (c *Chunker) Split(text, goal, modelID string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sections := splitSections(text)

	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, section := range sections {
		if len(section) > c.chunkSize {
			// Oversize section: flush what we have, then cut on lines
			flush()
			pieces = append(pieces, splitLines(section, c.chunkSize)...)
			continue
		}

		if current.Len() > 0 && current.Len()+len(section)+1 > c.chunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(section)
	}
	flush()

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			Index:    i,
			Total:    len(pieces),
			Text:     piece,
			CacheKey: CacheKey(piece, goal, modelID),
		}
	}
	return chunks
}

// CacheKey derives the content address of one extraction unit
func CacheKey(text, goal, modelID string) string {
	h := sha256.Sum256([]byte(text + "|" + goal + "|" + modelID))
	return hex.EncodeToString(h[:])
}

// splitSections breaks text at markdown heading lines, keeping the heading
// with its section body
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var current strings.Builder

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") && current.Len() > 0 {
			sections = append(sections, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, strings.TrimSpace(current.String()))
	}
	return sections
}

// splitLines cuts an oversize section on line boundaries at the size limit.
// A single line longer than the limit is cut mid-line as a last resort.
func splitLines(section string, limit int) []string {
	var pieces []string
	var current strings.Builder

	for _, line := range strings.Split(section, "\n") {
		for len(line) > limit {
			if current.Len() > 0 {
				pieces = append(pieces, strings.TrimSpace(current.String()))
				current.Reset()
			}
			cut := runeBoundary(line, limit)
			pieces = append(pieces, line[:cut])
			line = line[cut:]
		}

		if current.Len() > 0 && current.Len()+len(line)+1 > limit {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}
	return pieces
}

// runeBoundary backs a byte offset up to the nearest rune start so a
// mid-line cut never splits a multi-byte character
func runeBoundary(s string, offset int) int {
	for offset > 0 && !utf8.RuneStart(s[offset]) {
		offset--
	}
	if offset == 0 {
		// Limit smaller than a single rune, take the whole rune anyway
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return offset
}

// Label formats the chunk's position tag used in extraction prompts
func (ch Chunk) Label() string {
	return fmt.Sprintf("[%d/%d]", ch.Index+1, ch.Total)
}
