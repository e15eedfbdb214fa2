// Package summary builds the per-file record stored next to a file's elements.
package summary

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/Aman-CERP/codeindex/internal/chunk"
)

// Metadata keys for stored summaries.
const (
	MetaFilePath       = "file_path"
	MetaFileType       = "file_type"
	MetaLineCount      = "line_count"
	MetaElementCount   = "element_count"
	MetaSummary        = "summary"
	MetaElementsByType = "elements_by_type"
)

// FileSummary describes one indexed file. FilePath is the storage key.
type FileSummary struct {
	FilePath       string `json:"file_path"`
	FileType       string `json:"file_type"`
	LineCount      int    `json:"line_count"`
	ElementCount   int    `json:"element_count"`
	Summary        string `json:"summary"`
	ElementsByType string `json:"elements_by_type"`
}

// Summarize computes the summary of a file from its raw content and extracted elements.
func Summarize(filePath, content string, elements []chunk.Element) FileSummary {
	return FileSummary{
		FilePath:       filePath,
		FileType:       strings.ToLower(path.Ext(filePath)),
		LineCount:      chunk.LineCount(content),
		ElementCount:   len(elements),
		Summary:        fmt.Sprintf("File %s contains %d code elements", path.Base(filePath), len(elements)),
		ElementsByType: countByKind(elements),
	}
}

// countByKind renders "kind: n" pairs in first-seen order, or "none".
func countByKind(elements []chunk.Element) string {
	var order []chunk.Kind
	counts := make(map[chunk.Kind]int)
	for _, e := range elements {
		if _, ok := counts[e.Kind]; !ok {
			order = append(order, e.Kind)
		}
		counts[e.Kind]++
	}
	if len(order) == 0 {
		return "none"
	}

	parts := make([]string, 0, len(order))
	for _, k := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

// ID returns the storage key.
func (s *FileSummary) ID() string {
	return s.FilePath
}

// Document returns the text that gets embedded for the summary.
func (s *FileSummary) Document() string {
	return s.FilePath + "\n" + s.Summary + "\nContains: " + s.ElementsByType
}

// Metadata returns the flat string metadata stored with the summary.
func (s *FileSummary) Metadata() map[string]string {
	return map[string]string{
		MetaFilePath:       s.FilePath,
		MetaFileType:       s.FileType,
		MetaLineCount:      strconv.Itoa(s.LineCount),
		MetaElementCount:   strconv.Itoa(s.ElementCount),
		MetaSummary:        s.Summary,
		MetaElementsByType: s.ElementsByType,
	}
}

// FromMetadata rebuilds a summary from stored metadata.
// Returns false when file_path is missing or a count is malformed.
func FromMetadata(meta map[string]string) (FileSummary, bool) {
	if meta == nil || meta[MetaFilePath] == "" {
		return FileSummary{}, false
	}
	lines, err := strconv.Atoi(meta[MetaLineCount])
	if err != nil {
		return FileSummary{}, false
	}
	count, err := strconv.Atoi(meta[MetaElementCount])
	if err != nil {
		return FileSummary{}, false
	}
	return FileSummary{
		FilePath:       meta[MetaFilePath],
		FileType:       meta[MetaFileType],
		LineCount:      lines,
		ElementCount:   count,
		Summary:        meta[MetaSummary],
		ElementsByType: meta[MetaElementsByType],
	}, true
}
