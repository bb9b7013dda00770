package splitter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
)

// ErrInvalidConfig is returned by New for splitter parameters that can
// never produce valid chunks.
var ErrInvalidConfig = errors.New("invalid splitter config")

// separators is the fixed preference order: paragraph break, line break,
// sentence boundary, word boundary. A run with none of these is kept
// whole even when it exceeds the chunk size.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter cuts documents into overlapping chunks of at most ChunkSize
// bytes. Each chunk after the first starts with up to ChunkOverlap
// trailing bytes of its predecessor, so that dropping the overlap prefix
// of every chunk and concatenating reconstructs the source text.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

func New(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)",
			ErrInvalidConfig, chunkOverlap, chunkSize)
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Split chunks every document in order. Each chunk carries its own copy
// of the source document's metadata; loader-set keys are never removed.
func (s *Splitter) Split(docs []schema.Document) []schema.Document {
	log.Info().Int("documents", len(docs)).Msg("Splitting documents into chunks")
	var chunks []schema.Document
	for _, doc := range docs {
		for _, text := range s.SplitText(doc.PageContent) {
			chunks = append(chunks, schema.Document{
				PageContent: text,
				Metadata:    cloneMetadata(doc.Metadata),
			})
		}
	}
	log.Info().Int("chunks", len(chunks)).Msg("Split into chunks")
	return chunks
}

// SplitText splits raw text into overlapping chunks.
func (s *Splitter) SplitText(text string) []string {
	if text == "" {
		return nil
	}
	return s.merge(s.segment(text, separators))
}

// segment recursively cuts text into units no longer than the chunk size
// where possible. Units keep their trailing separator, so concatenating
// them restores the input byte for byte. Only a segment that still
// exceeds the chunk size falls through to the next smaller separator.
func (s *Splitter) segment(text string, seps []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	for i, sep := range seps {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.SplitAfter(text, sep)
		var units []string
		for _, part := range parts {
			if part == "" {
				continue
			}
			if len(part) > s.chunkSize {
				units = append(units, s.segment(part, seps[i+1:])...)
			} else {
				units = append(units, part)
			}
		}
		return units
	}
	// no separator applies; keep the run whole rather than truncate
	return []string{text}
}

// merge packs consecutive units into chunks, seeding each new chunk with
// the tail of the previous one. The seed shrinks when the next unit
// would not otherwise fit, so only an oversized atomic unit can push a
// chunk past the size limit.
func (s *Splitter) merge(units []string) []string {
	var chunks []string
	var cur strings.Builder
	seedLen := 0
	for _, unit := range units {
		if cur.Len() > seedLen && cur.Len()+len(unit) > s.chunkSize {
			chunk := cur.String()
			chunks = append(chunks, chunk)
			cur.Reset()
			seed := overlapTail(chunk, s.chunkOverlap)
			if len(seed)+len(unit) > s.chunkSize {
				keep := s.chunkSize - len(unit)
				if keep < 0 {
					keep = 0
				}
				seed = seed[len(seed)-keep:]
			}
			seedLen = len(seed)
			cur.WriteString(seed)
		}
		cur.WriteString(unit)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

func overlapTail(chunk string, overlap int) string {
	if len(chunk) <= overlap {
		return chunk
	}
	return chunk[len(chunk)-overlap:]
}

func cloneMetadata(meta map[string]any) map[string]any {
	clone := make(map[string]any, len(meta))
	for k, v := range meta {
		clone[k] = v
	}
	return clone
}
