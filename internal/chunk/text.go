package chunk

import (
	"context"
	"strconv"
)

// ChunkParser partitions a file into fixed-size line windows.
// It is the fallback for extensions without a grammar.
type ChunkParser struct {
	lines int
}

// NewChunkParser creates a chunk parser with the given window size.
// A non-positive size uses DefaultChunkLines.
func NewChunkParser(lines int) *ChunkParser {
	if lines <= 0 {
		lines = DefaultChunkLines
	}
	return &ChunkParser{lines: lines}
}

// Name implements Parser.
func (p *ChunkParser) Name() string {
	return "text"
}

// Window is one slice of the partition.
type Window struct {
	Index     int
	StartLine int
	EndLine   int
	Content   string
}

// Windows returns the full partition of content, blank windows included.
// Concatenating the windows in order yields content unchanged.
func (p *ChunkParser) Windows(content string) []Window {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	windows := make([]Window, 0, (len(lines)+p.lines-1)/p.lines)
	for start := 0; start < len(lines); start += p.lines {
		end := start + p.lines
		if end > len(lines) {
			end = len(lines)
		}
		windows = append(windows, Window{
			Index:     len(windows),
			StartLine: start + 1,
			EndLine:   end,
			Content:   lineSpan(lines, start+1, end),
		})
	}
	return windows
}

// Parse implements Parser. Each non-blank window becomes a text_chunk element
// named by its zero-based index.
func (p *ChunkParser) Parse(ctx context.Context, filePath string, content []byte) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var elements []Element
	for _, w := range p.Windows(string(content)) {
		if isBlank(w.Content) {
			continue
		}
		elements = append(elements, newElement(filePath, p.Name(), strconv.Itoa(w.Index), KindTextChunk,
			w.StartLine, w.EndLine, w.Content, ""))
	}
	return elements, nil
}
