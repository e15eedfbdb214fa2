package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	return sb.String()
}

func TestChunkParser_Windows_Reconstructs(t *testing.T) {
	inputs := map[string]string{
		"exact multiple":     numberedLines(10),
		"remainder":          numberedLines(13),
		"no trailing '\\n'":  strings.TrimSuffix(numberedLines(7), "\n"),
		"crlf":               "a\r\nb\r\nc\r\n",
		"blank lines inside": "x\n\n\n\n\ny\n",
	}

	for name, content := range inputs {
		t.Run(name, func(t *testing.T) {
			windows := NewChunkParser(5).Windows(content)

			var sb strings.Builder
			for i, w := range windows {
				assert.Equal(t, i, w.Index)
				sb.WriteString(w.Content)
			}
			assert.Equal(t, content, sb.String())
		})
	}
}

func TestChunkParser_Parse_WindowBounds(t *testing.T) {
	content := numberedLines(12)

	elements, err := NewChunkParser(5).Parse(context.Background(), "notes.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 3)

	assert.Equal(t, "0", elements[0].Name)
	assert.Equal(t, 1, elements[0].StartLine)
	assert.Equal(t, 5, elements[0].EndLine)

	assert.Equal(t, "1", elements[1].Name)
	assert.Equal(t, 6, elements[1].StartLine)
	assert.Equal(t, 10, elements[1].EndLine)

	assert.Equal(t, "2", elements[2].Name)
	assert.Equal(t, 11, elements[2].StartLine)
	assert.Equal(t, 12, elements[2].EndLine)

	for _, e := range elements {
		assert.Equal(t, KindTextChunk, e.Kind)
		assert.Equal(t, "text", e.Language)
		assert.Empty(t, e.Docstring)
	}
}

func TestChunkParser_Parse_SkipsBlankWindowsKeepsIndex(t *testing.T) {
	content := "a\nb\n\n\n\n\nc\n"

	elements, err := NewChunkParser(2).Parse(context.Background(), "f.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, "0", elements[0].Name)
	assert.Equal(t, "3", elements[1].Name, "blank windows 1 and 2 are skipped")
	assert.Equal(t, 7, elements[1].StartLine)
}

func TestChunkParser_DefaultWindow(t *testing.T) {
	elements, err := NewChunkParser(0).Parse(context.Background(), "big.json", []byte(numberedLines(120)))
	require.NoError(t, err)
	require.Len(t, elements, 3)
	assert.Equal(t, 50, elements[0].EndLine)
	assert.Equal(t, 120, elements[2].EndLine)
}

func TestChunkParser_Parse_Empty(t *testing.T) {
	elements, err := NewChunkParser(5).Parse(context.Background(), "empty.txt", nil)
	require.NoError(t, err)
	assert.Empty(t, elements)
}
