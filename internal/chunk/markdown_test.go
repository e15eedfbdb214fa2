package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownParser_Parse_TwoSections(t *testing.T) {
	content := "# A\n" +
		"alpha one\n" +
		"alpha two\n" +
		"alpha three\n" +
		"# B\n" +
		"beta one\n" +
		"beta two\n" +
		"beta three\n"

	elements, err := NewMarkdownParser().Parse(context.Background(), "doc.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 2)

	assert.Equal(t, "A", elements[0].Name)
	assert.Equal(t, KindMarkdownSection, elements[0].Kind)
	assert.Equal(t, 2, elements[0].StartLine)
	assert.Equal(t, 4, elements[0].EndLine)
	assert.Equal(t, "alpha one\nalpha two\nalpha three\n", elements[0].Content)

	assert.Equal(t, "B", elements[1].Name)
	assert.Equal(t, 6, elements[1].StartLine)
	assert.Equal(t, 8, elements[1].EndLine)
	assert.Equal(t, "markdown", elements[1].Language)
}

func TestMarkdownParser_Parse_Introduction(t *testing.T) {
	content := "Some preamble.\n\n## Usage ##\nRun it.\n"

	elements, err := NewMarkdownParser().Parse(context.Background(), "README.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 2)

	assert.Equal(t, DefaultSectionName, elements[0].Name)
	assert.Equal(t, 1, elements[0].StartLine)
	assert.Equal(t, 2, elements[0].EndLine)

	assert.Equal(t, "Usage", elements[1].Name, "closing hashes are stripped")
	assert.Equal(t, 4, elements[1].StartLine)
}

func TestMarkdownParser_Parse_DropsBlankSections(t *testing.T) {
	content := "# Empty\n\n   \n# Full\ntext\n# Trailing\n"

	elements, err := NewMarkdownParser().Parse(context.Background(), "x.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "Full", elements[0].Name)
	assert.Equal(t, 5, elements[0].StartLine)
	assert.Equal(t, 5, elements[0].EndLine)
}

func TestMarkdownParser_Parse_IndentedHeading(t *testing.T) {
	content := "  ### Indented\nbody\n"

	elements, err := NewMarkdownParser().Parse(context.Background(), "x.md", []byte(content))
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, "Indented", elements[0].Name)
}

// Every line is either a heading or inside exactly one emitted section.
func TestMarkdownParser_Parse_CoversEveryLineOnce(t *testing.T) {
	content := strings.Join([]string{
		"intro line",
		"# One",
		"a",
		"b",
		"## Two",
		"c",
		"",
		"### Three",
		"d",
		"e",
		"f",
	}, "\n")

	elements, err := NewMarkdownParser().Parse(context.Background(), "cover.md", []byte(content))
	require.NoError(t, err)

	lines := splitLines(content)
	covered := make([]int, len(lines)+1)
	for i, line := range lines {
		if _, ok := headingText(line); ok {
			covered[i+1]++
		}
	}
	for _, e := range elements {
		for l := e.StartLine; l <= e.EndLine; l++ {
			covered[l]++
		}
	}
	for l := 1; l <= len(lines); l++ {
		assert.Equal(t, 1, covered[l], "line %d", l)
	}
}

func TestMarkdownParser_Parse_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMarkdownParser().Parse(ctx, "x.md", []byte("# A\nb\n"))
	assert.ErrorIs(t, err, context.Canceled)
}
