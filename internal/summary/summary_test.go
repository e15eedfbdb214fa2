package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeindex/internal/chunk"
)

func TestSummarize_CountsInFirstSeenOrder(t *testing.T) {
	elements := []chunk.Element{
		{Name: "import", Kind: chunk.KindImport},
		{Name: "foo", Kind: chunk.KindFunction},
		{Name: "Bar", Kind: chunk.KindClass},
		{Name: "baz", Kind: chunk.KindFunction},
	}

	s := Summarize("src/pkg/mod.py", "import os\n\ndef foo(): pass\n", elements)

	assert.Equal(t, "src/pkg/mod.py", s.ID())
	assert.Equal(t, ".py", s.FileType)
	assert.Equal(t, 3, s.LineCount)
	assert.Equal(t, 4, s.ElementCount)
	assert.Equal(t, "File mod.py contains 4 code elements", s.Summary)
	assert.Equal(t, "import: 1, function: 2, class: 1", s.ElementsByType)
	assert.Equal(t, "src/pkg/mod.py\nFile mod.py contains 4 code elements\nContains: import: 1, function: 2, class: 1", s.Document())
}

func TestSummarize_NoElements(t *testing.T) {
	s := Summarize("broken.py", "def (\n", nil)

	assert.Equal(t, 0, s.ElementCount)
	assert.Equal(t, 1, s.LineCount)
	assert.Equal(t, "none", s.ElementsByType)
	assert.Equal(t, "File broken.py contains 0 code elements", s.Summary)
}

func TestFileSummary_MetadataRoundTrip(t *testing.T) {
	s := Summarize("README.md", "# A\nb\n", []chunk.Element{{Kind: chunk.KindMarkdownSection}})

	back, ok := FromMetadata(s.Metadata())
	require.True(t, ok)
	assert.Equal(t, s, back)
}

func TestFromMetadata_Malformed(t *testing.T) {
	_, ok := FromMetadata(nil)
	assert.False(t, ok)

	_, ok = FromMetadata(map[string]string{MetaFilePath: "a.py", MetaLineCount: "x", MetaElementCount: "1"})
	assert.False(t, ok)

	_, ok = FromMetadata(map[string]string{MetaLineCount: "1", MetaElementCount: "1"})
	assert.False(t, ok)
}
