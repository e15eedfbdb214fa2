package search

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	resultSeparatorWidth  = 50
	fileSeparatorWidth    = 40
	elementSeparatorWidth = 30

	maxDocstringChars = 100
	maxContentChars   = 300
)

// NotIndexedMessage is shown for any query against a project that was never indexed.
const NotIndexedMessage = "No code index found. Please run indexing first."

// Sentinel returns the message shown in place of results for the conditions
// that are reported as text rather than as failures: a missing index and
// inconsistent store output. subject is the query, kind or path of the call.
func Sentinel(err error, subject string) (string, bool) {
	switch {
	case errors.Is(err, ErrNotIndexed):
		return NotIndexedMessage, true
	case errors.Is(err, ErrInconsistentResults):
		return fmt.Sprintf("Inconsistent result data for query: '%s'", subject), true
	default:
		return "", false
	}
}

// FormatResults renders SemanticSearch output.
func FormatResults(r *Results) string {
	if r == nil || len(r.Items) == 0 {
		return fmt.Sprintf("No results found for query: '%s'", queryOf(r))
	}

	blocks := make([]string, 0, len(r.Items))
	for i, item := range r.Items {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Result %d (similarity: %.3f):\n", i+1, item.Similarity)
		fmt.Fprintf(&sb, "  Name: %s\n", item.Name)
		fmt.Fprintf(&sb, "  Type: %s\n", item.Kind)
		fmt.Fprintf(&sb, "  File: %s\n", item.FilePath)
		fmt.Fprintf(&sb, "  Lines: %d-%d\n", item.StartLine, item.EndLine)
		if item.Docstring != "" {
			fmt.Fprintf(&sb, "  Docstring: %s\n", truncate(item.Docstring, maxDocstringChars))
		}
		fmt.Fprintf(&sb, "  Content:\n%s\n", truncate(item.Content, maxContentChars))
		sb.WriteString(strings.Repeat("-", resultSeparatorWidth))
		sb.WriteString("\n")
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}

// FormatFiles renders FindFilesByContent output.
func FormatFiles(r *FileResults) string {
	if r == nil || len(r.Items) == 0 {
		query := ""
		if r != nil {
			query = r.Query
		}
		return fmt.Sprintf("No files found for query: '%s'", query)
	}

	blocks := make([]string, 0, len(r.Items))
	for i, item := range r.Items {
		var sb strings.Builder
		fmt.Fprintf(&sb, "File %d (similarity: %.3f):\n", i+1, item.Similarity)
		fmt.Fprintf(&sb, "  Path: %s\n", item.FilePath)
		fmt.Fprintf(&sb, "  Type: %s\n", item.FileType)
		fmt.Fprintf(&sb, "  Lines: %d\n", item.LineCount)
		fmt.Fprintf(&sb, "  Elements: %d\n", item.ElementCount)
		fmt.Fprintf(&sb, "  Summary: %s\n", item.Summary)
		if item.ElementsByType != "" {
			fmt.Fprintf(&sb, "  Contains: %s\n", item.ElementsByType)
		}
		sb.WriteString(strings.Repeat("-", fileSeparatorWidth))
		sb.WriteString("\n")
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}

// FormatElements renders FindElementsByType output.
func FormatElements(l *ElementList) string {
	if l == nil || len(l.Items) == 0 {
		kind := ""
		if l != nil {
			kind = l.Kind
		}
		return fmt.Sprintf("No %s elements found.", kind)
	}

	title := titleCase(l.Kind)
	blocks := make([]string, 0, len(l.Items))
	for i, item := range l.Items {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s %d:\n", title, i+1)
		fmt.Fprintf(&sb, "  Name: %s\n", item.Name)
		fmt.Fprintf(&sb, "  File: %s\n", item.FilePath)
		fmt.Fprintf(&sb, "  Lines: %d-%d\n", item.StartLine, item.EndLine)
		if item.Docstring != "" {
			fmt.Fprintf(&sb, "  Docstring: %s\n", truncate(item.Docstring, maxDocstringChars))
		}
		sb.WriteString(strings.Repeat("-", elementSeparatorWidth))
		sb.WriteString("\n")
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n")
}

// FormatStructure renders GetFileStructure output.
func FormatStructure(s *FileStructure) string {
	if !s.Found() {
		path := ""
		if s != nil {
			path = s.Path
		}
		return fmt.Sprintf("No structure information found for %s", path)
	}

	lines := []string{"File: " + s.Path}
	if s.Summary != nil {
		lines = append(lines,
			"Type: "+s.Summary.FileType,
			fmt.Sprintf("Lines: %d", s.Summary.LineCount),
			fmt.Sprintf("Total elements: %d", s.Summary.ElementCount))
	}
	lines = append(lines, "")

	for _, g := range s.Groups {
		lines = append(lines, pluralUpper(g.Kind)+":")
		for _, el := range g.Elements {
			lines = append(lines, fmt.Sprintf("  - %s (lines %d-%d)", el.Name, el.StartLine, el.EndLine))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func queryOf(r *Results) string {
	if r == nil {
		return ""
	}
	return r.Query
}

// truncate cuts s to limit runes and marks the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// pluralUpper renders a group heading: "function" becomes "FUNCTIONS",
// "class" becomes "CLASSES".
func pluralUpper(kind string) string {
	kind = strings.ToUpper(kind)
	if strings.HasSuffix(kind, "S") {
		return kind + "ES"
	}
	return kind + "S"
}

// titleCase upper-cases the first letter of every word, where words are
// separated by anything that is not a letter: "markdown_section" becomes
// "Markdown_Section".
func titleCase(s string) string {
	runes := []rune(s)
	start := true
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if start {
				runes[i] = unicode.ToUpper(r)
			}
			start = false
		} else {
			start = true
		}
	}
	return string(runes)
}
