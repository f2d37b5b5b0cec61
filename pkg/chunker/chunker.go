package chunker

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	windowSize   = 3
	windowStride = 2
)

// TokenCounter returns the token count of a piece of text.
type TokenCounter func(text string) int

// Chunker splits raw text into overlapping paragraph windows. Lines are
// capped at LinesPerSplit tokens, paragraphs at TokensPerParagraph tokens,
// and windows cover three consecutive paragraphs with stride two so adjacent
// chunks share one paragraph of context.
type Chunker struct {
	linesPerSplit      int
	tokensPerParagraph int
	count              TokenCounter
}

// New creates a Chunker counting tokens with the given tiktoken encoding
// (e.g. "cl100k_base").
func New(linesPerSplit, tokensPerParagraph int, encoding string) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	counter := func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}
	return NewWithCounter(linesPerSplit, tokensPerParagraph, counter), nil
}

// NewWithCounter creates a Chunker with a custom token counter.
func NewWithCounter(linesPerSplit, tokensPerParagraph int, count TokenCounter) *Chunker {
	if linesPerSplit <= 0 {
		linesPerSplit = 100
	}
	if tokensPerParagraph <= 0 {
		tokensPerParagraph = 1000
	}
	return &Chunker{
		linesPerSplit:      linesPerSplit,
		tokensPerParagraph: tokensPerParagraph,
		count:              count,
	}
}

// Chunk splits text into ordered, deduplicated chunks. Each chunk is fed
// independently to ingest.
func (c *Chunker) Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := c.splitLines(text)
	paragraphs := c.groupParagraphs(lines)
	return c.windows(paragraphs)
}

// splitLines breaks the text at newlines and further splits any line that
// exceeds the per-line token budget at word boundaries.
func (c *Chunker) splitLines(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if c.count(line) <= c.linesPerSplit {
			lines = append(lines, line)
			continue
		}

		var current strings.Builder
		for _, word := range strings.Fields(line) {
			candidate := word
			if current.Len() > 0 {
				candidate = current.String() + " " + word
			}
			if current.Len() > 0 && c.count(candidate) > c.linesPerSplit {
				lines = append(lines, current.String())
				current.Reset()
				current.WriteString(word)
				continue
			}
			current.Reset()
			current.WriteString(candidate)
		}
		if current.Len() > 0 {
			lines = append(lines, current.String())
		}
	}
	return lines
}

// groupParagraphs joins consecutive lines into paragraphs within the
// per-paragraph token budget.
func (c *Chunker) groupParagraphs(lines []string) []string {
	var paragraphs []string
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
		current = nil
		currentTokens = 0
	}

	for _, line := range lines {
		lineTokens := c.count(line)
		if len(current) > 0 && currentTokens+lineTokens > c.tokensPerParagraph {
			flush()
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	flush()

	return paragraphs
}

// windows forms overlapping windows of three consecutive paragraphs with
// stride two, suppressing duplicates. Three or fewer paragraphs collapse to
// a single window.
func (c *Chunker) windows(paragraphs []string) []string {
	if len(paragraphs) == 0 {
		return nil
	}
	if len(paragraphs) <= windowSize {
		return []string{strings.Join(paragraphs, "\n")}
	}

	seen := map[string]struct{}{}
	var chunks []string
	for i := 0; i < len(paragraphs); i += windowStride {
		end := min(i+windowSize, len(paragraphs))
		window := strings.Join(paragraphs[i:end], "\n")
		if _, ok := seen[window]; !ok {
			seen[window] = struct{}{}
			chunks = append(chunks, window)
		}
		if end == len(paragraphs) {
			break
		}
	}
	return chunks
}
