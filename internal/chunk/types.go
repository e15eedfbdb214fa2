package chunk

import (
	"context"
	"path"
	"strconv"
	"strings"
)

// Kind classifies an extracted element.
type Kind string

const (
	KindFunction        Kind = "function"
	KindClass           Kind = "class"
	KindImport          Kind = "import"
	KindMarkdownSection Kind = "markdown_section"
	KindTextChunk       Kind = "text_chunk"
)

// DefaultSectionName names markdown content that precedes the first heading.
const DefaultSectionName = "Introduction"

// DefaultChunkLines is the fallback window size in lines.
const DefaultChunkLines = 50

// Metadata keys written alongside every stored element.
const (
	MetaName      = "name"
	MetaKind      = "element_type"
	MetaFilePath  = "file_path"
	MetaFileType  = "file_type"
	MetaLanguage  = "language"
	MetaStartLine = "start_line"
	MetaEndLine   = "end_line"
	MetaContent   = "content"
	MetaDocstring = "docstring"
	MetaHash      = "hash"
)

// Element is one semantically meaningful unit extracted from a file.
type Element struct {
	Name      string
	Kind      Kind
	FilePath  string // slash-separated, relative to the indexed root
	Language  string
	StartLine int // 1-indexed
	EndLine   int // inclusive
	Content   string
	Docstring string
	Hash      string
}

// ID returns the storage key: file_path:start_line:hash.
func (e *Element) ID() string {
	return e.FilePath + ":" + strconv.Itoa(e.StartLine) + ":" + e.Hash
}

// Document returns the text that gets embedded for the element.
func (e *Element) Document() string {
	var sb strings.Builder
	sb.WriteString(e.Name)
	sb.WriteString(" ")
	sb.WriteString(string(e.Kind))
	sb.WriteString("\n")
	sb.WriteString(e.Content)
	if e.Docstring != "" {
		sb.WriteString("\n")
		sb.WriteString(e.Docstring)
	}
	return sb.String()
}

// Metadata returns the flat string metadata stored with the element.
func (e *Element) Metadata() map[string]string {
	return map[string]string{
		MetaName:      e.Name,
		MetaKind:      string(e.Kind),
		MetaFilePath:  e.FilePath,
		MetaFileType:  strings.ToLower(path.Ext(e.FilePath)),
		MetaLanguage:  e.Language,
		MetaStartLine: strconv.Itoa(e.StartLine),
		MetaEndLine:   strconv.Itoa(e.EndLine),
		MetaContent:   e.Content,
		MetaDocstring: e.Docstring,
		MetaHash:      e.Hash,
	}
}

// ElementFromMetadata rebuilds an element from stored metadata.
// Returns false when a required field is missing or a line number is malformed.
func ElementFromMetadata(meta map[string]string) (Element, bool) {
	if meta == nil {
		return Element{}, false
	}
	name, okName := meta[MetaName]
	kind, okKind := meta[MetaKind]
	file, okFile := meta[MetaFilePath]
	if !okName || !okKind || !okFile || kind == "" || file == "" {
		return Element{}, false
	}
	start, err := strconv.Atoi(meta[MetaStartLine])
	if err != nil || start < 1 {
		return Element{}, false
	}
	end, err := strconv.Atoi(meta[MetaEndLine])
	if err != nil || end < start {
		return Element{}, false
	}
	return Element{
		Name:      name,
		Kind:      Kind(kind),
		FilePath:  file,
		Language:  meta[MetaLanguage],
		StartLine: start,
		EndLine:   end,
		Content:   meta[MetaContent],
		Docstring: meta[MetaDocstring],
		Hash:      meta[MetaHash],
	}, true
}

// Parser extracts an ordered sequence of elements from one file.
type Parser interface {
	// Parse returns the elements of a file in source order.
	Parse(ctx context.Context, filePath string, content []byte) ([]Element, error)

	// Name identifies the parser variant (a grammar language, "markdown" or "text").
	Name() string
}

// LanguageConfig describes a grammar language and its declaration node types.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes []string
	ClassTypes    []string
	ImportTypes   []string

	// CommentDocs means docstrings come from the comment block above a declaration
	// instead of a leading string statement in the body.
	CommentDocs bool
}

// kindOf maps a node type to an element kind.
func (c *LanguageConfig) kindOf(nodeType string) (Kind, bool) {
	for _, t := range c.FunctionTypes {
		if t == nodeType {
			return KindFunction, true
		}
	}
	for _, t := range c.ClassTypes {
		if t == nodeType {
			return KindClass, true
		}
	}
	for _, t := range c.ImportTypes {
		if t == nodeType {
			return KindImport, true
		}
	}
	return "", false
}
