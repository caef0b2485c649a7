package kb

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 50
)

// Chunker splits documents into token-bounded chunks with overlap so that
// context is not lost at chunk boundaries.
type Chunker struct {
	encoder *tiktoken.Tiktoken
	size    int
	overlap int
}

// NewChunker creates a chunker using the cl100k_base encoding.
func NewChunker() (*Chunker, error) {
	return NewChunkerWithLimits(defaultChunkSize, defaultChunkOverlap)
}

// NewChunkerWithLimits creates a chunker with explicit size and overlap.
func NewChunkerWithLimits(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d", overlap)
	}
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Chunker{encoder: encoder, size: size, overlap: overlap}, nil
}

// Chunk splits text into overlapping token windows. Short texts come back as
// a single chunk.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= c.size {
		return []string{text}
	}

	var chunks []string
	step := c.size - c.overlap
	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := strings.TrimSpace(c.encoder.Decode(tokens[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// TokenCount returns the token length of text under the chunker's encoding.
func (c *Chunker) TokenCount(text string) int {
	return len(c.encoder.Encode(text, nil, nil))
}
