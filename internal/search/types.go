// Package search answers queries over an index built by internal/index:
// ranked semantic search over elements and file summaries, exact lookups by
// kind and by file, and the text forms of each result.
package search

import (
	"errors"
	"path"
	"strings"

	"github.com/Aman-CERP/codeindex/internal/chunk"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/summary"
)

// Defaults applied when a caller passes a non-positive count.
const (
	DefaultLimit     = 5
	DefaultTypeLimit = 10
)

var (
	// ErrNilDependency is returned by New when a required dependency is nil.
	ErrNilDependency = errors.New("nil dependency")

	// ErrNotIndexed means the collection being queried was never created.
	ErrNotIndexed = errors.New("no code index found")

	// ErrInconsistentResults is the store's parallel-array mismatch.
	ErrInconsistentResults = store.ErrInconsistentResults
)

// Filter restricts semantic search by stored metadata. Empty fields match everything.
type Filter struct {
	// FileType is an extension, with or without the dot (".py", "md").
	FileType string

	// Kind is an element kind such as "function" or "markdown_section".
	Kind string
}

// where converts the filter into an exact-match store filter.
func (f Filter) where() store.Where {
	w := store.Where{}
	if ft := strings.ToLower(strings.TrimSpace(f.FileType)); ft != "" {
		if !strings.HasPrefix(ft, ".") {
			ft = "." + ft
		}
		w[chunk.MetaFileType] = ft
	}
	if k := strings.TrimSpace(f.Kind); k != "" {
		w[chunk.MetaKind] = k
	}
	if len(w) == 0 {
		return nil
	}
	return w
}

// Element is the caller-facing view of a stored code element.
type Element struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	FilePath  string `json:"file_path"`
	Language  string `json:"language,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Docstring string `json:"docstring,omitempty"`
	Content   string `json:"content"`
}

func elementFrom(id string, e chunk.Element) Element {
	return Element{
		ID:        id,
		Name:      e.Name,
		Kind:      string(e.Kind),
		FilePath:  e.FilePath,
		Language:  e.Language,
		StartLine: e.StartLine,
		EndLine:   e.EndLine,
		Docstring: e.Docstring,
		Content:   e.Content,
	}
}

// Result is one ranked element.
type Result struct {
	Element
	Distance   float32 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// Results is the outcome of SemanticSearch.
type Results struct {
	Query   string   `json:"query"`
	Items   []Result `json:"results"`
	Skipped int      `json:"skipped,omitempty"`
}

// FileResult is one ranked file summary.
type FileResult struct {
	summary.FileSummary
	Distance   float32 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// FileResults is the outcome of FindFilesByContent.
type FileResults struct {
	Query   string       `json:"query"`
	Items   []FileResult `json:"files"`
	Skipped int          `json:"skipped,omitempty"`
}

// ElementList is the outcome of FindElementsByType.
type ElementList struct {
	Kind    string    `json:"kind"`
	Items   []Element `json:"elements"`
	Skipped int       `json:"skipped,omitempty"`
}

// Group holds the elements of one kind within a file.
type Group struct {
	Kind     string    `json:"kind"`
	Elements []Element `json:"elements"`
}

// FileStructure is the outcome of GetFileStructure. Groups appear in the
// order their kind is first seen when elements are ordered by start line.
type FileStructure struct {
	Path    string               `json:"path"`
	Summary *summary.FileSummary `json:"summary,omitempty"`
	Groups  []Group              `json:"groups"`
	Skipped int                  `json:"skipped,omitempty"`
}

// Found reports whether any element of the file is indexed.
func (s *FileStructure) Found() bool {
	return s != nil && len(s.Groups) > 0
}

// normalizePath turns a user-supplied path into the stored slash-separated form.
func normalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p), "./")
}
