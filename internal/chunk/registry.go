package chunk

import (
	"path"
	"sort"
	"strings"
)

// DefaultFallbackExtensions are indexed with the ChunkParser.
var DefaultFallbackExtensions = []string{
	".jsx", ".txt", ".rst", ".yaml", ".yml", ".toml", ".json", ".sh", ".cfg", ".ini",
}

// MarkdownExtensions are indexed with the MarkdownParser.
var MarkdownExtensions = []string{".md", ".markdown"}

// Registry selects the parser variant for a file by its extension.
type Registry struct {
	languages *LanguageRegistry
	markdown  *MarkdownParser
	chunks    *ChunkParser
	fallback  map[string]bool
	grammars  map[string]*GrammarParser
	custom    map[string]Parser
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithChunkLines sets the fallback window size.
func WithChunkLines(lines int) RegistryOption {
	return func(r *Registry) {
		r.chunks = NewChunkParser(lines)
	}
}

// WithFallbackExtensions replaces the extensions routed to the ChunkParser.
func WithFallbackExtensions(exts []string) RegistryOption {
	return func(r *Registry) {
		r.fallback = make(map[string]bool, len(exts))
		for _, ext := range exts {
			r.fallback[normalizeExt(ext)] = true
		}
	}
}

// WithParser routes ext to p ahead of the built-in variants.
func WithParser(ext string, p Parser) RegistryOption {
	return func(r *Registry) {
		r.custom[normalizeExt(ext)] = p
	}
}

// NewRegistry creates a parser registry over the default languages.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		languages: DefaultRegistry(),
		markdown:  NewMarkdownParser(),
		chunks:    NewChunkParser(DefaultChunkLines),
		grammars:  make(map[string]*GrammarParser),
		custom:    make(map[string]Parser),
	}
	WithFallbackExtensions(DefaultFallbackExtensions)(r)
	for _, opt := range opts {
		opt(r)
	}

	for _, ext := range r.languages.SupportedExtensions() {
		config, _ := r.languages.GetByExtension(ext)
		if _, ok := r.grammars[config.Name]; ok {
			continue
		}
		lang, _ := r.languages.GetTreeSitterLanguage(config.Name)
		r.grammars[config.Name] = NewGrammarParser(config, lang)
	}
	return r
}

// ParserFor returns the parser for filePath, or false if the extension is not indexed.
func (r *Registry) ParserFor(filePath string) (Parser, bool) {
	ext := strings.ToLower(path.Ext(filePath))
	if p, ok := r.custom[ext]; ok {
		return p, true
	}
	if config, ok := r.languages.GetByExtension(ext); ok {
		return r.grammars[config.Name], true
	}
	for _, md := range MarkdownExtensions {
		if ext == md {
			return r.markdown, true
		}
	}
	if r.fallback[ext] {
		return r.chunks, true
	}
	return nil, false
}

// Supports reports whether filePath has an indexed extension.
func (r *Registry) Supports(filePath string) bool {
	_, ok := r.ParserFor(filePath)
	return ok
}

// SupportedExtensions returns every indexed extension, sorted.
func (r *Registry) SupportedExtensions() []string {
	seen := make(map[string]bool)
	for _, ext := range r.languages.SupportedExtensions() {
		seen[ext] = true
	}
	for _, ext := range MarkdownExtensions {
		seen[ext] = true
	}
	for ext := range r.fallback {
		seen[ext] = true
	}
	for ext := range r.custom {
		seen[ext] = true
	}

	exts := make([]string, 0, len(seen))
	for ext := range seen {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
