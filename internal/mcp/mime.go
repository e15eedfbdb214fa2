package mcp

import (
	"github.com/Aman-CERP/codeindex/internal/scanner"
)

// mimeByExt covers the grammar, markdown and default fallback extensions.
var mimeByExt = map[string]string{
	".go":       "text/x-go",
	".py":       "text/x-python",
	".js":       "text/javascript",
	".mjs":      "text/javascript",
	".jsx":      "text/javascript",
	".ts":       "text/typescript",
	".tsx":      "text/typescript",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".rst":      "text/x-rst",
	".json":     "application/json",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".toml":     "application/toml",
	".sh":       "text/x-sh",
}

// MimeTypeForPath returns the MIME type served for an indexed file.
// Unknown extensions, including .txt, .cfg and .ini, are text/plain.
func MimeTypeForPath(path string) string {
	if mime, ok := mimeByExt[scanner.Ext(path)]; ok {
		return mime
	}
	return "text/plain"
}
