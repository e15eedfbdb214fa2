package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashElement returns the deterministic identity of an element.
// The digest covers name, kind and content joined with ':'.
func HashElement(name string, kind Kind, content string) string {
	h := sha256.New()
	_, _ = h.Write([]byte(name + ":" + string(kind) + ":" + content))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// newElement fills in the identity of an element built by a parser.
func newElement(filePath, language, name string, kind Kind, start, end int, content, docstring string) Element {
	return Element{
		Name:      name,
		Kind:      kind,
		FilePath:  filePath,
		Language:  language,
		StartLine: start,
		EndLine:   end,
		Content:   content,
		Docstring: docstring,
		Hash:      HashElement(name, kind, content),
	}
}

// splitLines splits content into lines that keep their terminators, so joining
// any contiguous range reproduces the exact bytes. A trailing newline does not
// produce an extra empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// lineSpan returns lines start..end (1-indexed, inclusive).
func lineSpan(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "")
}

// LineCount returns the number of lines in content as counted by the parsers.
func LineCount(content string) int {
	return len(splitLines(content))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
