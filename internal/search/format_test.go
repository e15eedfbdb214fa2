package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/summary"
)

func TestScorer(t *testing.T) {
	tests := []struct {
		name     string
		metric   store.Metric
		max      float64
		distance float32
		want     float64
	}{
		{"cosine identical", store.MetricCosine, 1, 0, 1},
		{"cosine default max", store.MetricCosine, 0, 0.25, 0.75},
		{"cosine wide range", store.MetricCosine, 2, 1, 0.5},
		{"dot", store.MetricDot, 1, 0.5, 0.5},
		{"l2 identical", store.MetricL2, 1, 0, 1},
		{"l2 unit", store.MetricL2, 1, 1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(tt.metric, tt.max)
			assert.InDelta(t, tt.want, s.Similarity(tt.distance), 1e-9)
		})
	}
}

func TestFilter_Where(t *testing.T) {
	assert.Nil(t, Filter{}.where())
	assert.Equal(t, store.Where{"file_type": ".py"}, Filter{FileType: "PY"}.where())
	assert.Equal(t, store.Where{"file_type": ".md", "element_type": "markdown_section"},
		Filter{FileType: ".md", Kind: "markdown_section"}.where())
}

func TestFormatResults_Truncates(t *testing.T) {
	r := &Results{Query: "q", Items: []Result{{
		Element: Element{
			Name: "long", Kind: "function", FilePath: "a.py", StartLine: 1, EndLine: 9,
			Docstring: strings.Repeat("d", 150),
			Content:   strings.Repeat("c", 400),
		},
		Similarity: 0.91234,
	}, {
		Element:    Element{Name: "short", Kind: "class", FilePath: "b.py", StartLine: 2, EndLine: 3, Content: "x"},
		Similarity: 0.5,
	}}}

	text := FormatResults(r)
	assert.Contains(t, text, "Result 1 (similarity: 0.912):\n")
	assert.Contains(t, text, "  Docstring: "+strings.Repeat("d", 100)+"...\n")
	assert.Contains(t, text, "  Content:\n"+strings.Repeat("c", 300)+"...\n")
	assert.Contains(t, text, "Result 2 (similarity: 0.500):\n")
	assert.Equal(t, 2, strings.Count(text, strings.Repeat("-", 50)+"\n"))
	assert.Equal(t, 1, strings.Count(text, "Docstring:"))
}

func TestFormat_EmptySentinels(t *testing.T) {
	assert.Equal(t, "No results found for query: 'x'", FormatResults(&Results{Query: "x"}))
	assert.Equal(t, "No files found for query: 'x'", FormatFiles(&FileResults{Query: "x"}))
	assert.Equal(t, "No function elements found.", FormatElements(&ElementList{Kind: "function"}))
	assert.Equal(t, "No structure information found for a.py", FormatStructure(&FileStructure{Path: "a.py"}))
	assert.Equal(t, "No structure information found for ", FormatStructure(nil))
}

func TestFormatStructure_WithoutSummary(t *testing.T) {
	s := &FileStructure{Path: "doc.md", Groups: []Group{{
		Kind:     "markdown_section",
		Elements: []Element{{Name: "A", StartLine: 2, EndLine: 4}, {Name: "B", StartLine: 6, EndLine: 8}},
	}}}
	want := "File: doc.md\n\nMARKDOWN_SECTIONS:\n  - A (lines 2-4)\n  - B (lines 6-8)\n"
	assert.Equal(t, want, FormatStructure(s))

	s.Summary = &summary.FileSummary{FileType: ".md", LineCount: 8, ElementCount: 2}
	assert.True(t, strings.HasPrefix(FormatStructure(s), "File: doc.md\nType: .md\nLines: 8\nTotal elements: 2\n\n"))
}

func TestSentinel_Unrelated(t *testing.T) {
	_, ok := Sentinel(nil, "q")
	assert.False(t, ok)
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Function", titleCase("function"))
	assert.Equal(t, "Markdown_Section", titleCase("markdown_section"))
	assert.Equal(t, "FUNCTIONS", pluralUpper("function"))
	assert.Equal(t, "CLASSES", pluralUpper("class"))
}
