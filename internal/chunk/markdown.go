package chunk

import (
	"context"
	"strings"
)

// MarkdownParser splits markdown into heading-delimited sections.
type MarkdownParser struct{}

// NewMarkdownParser creates a markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Name implements Parser.
func (p *MarkdownParser) Name() string {
	return "markdown"
}

// Parse implements Parser.
//
// A heading is any line whose trimmed form starts with '#'. The lines between two
// headings form one markdown_section named after the preceding heading; heading
// lines themselves belong to no section. Sections holding only blank lines are dropped.
func (p *MarkdownParser) Parse(ctx context.Context, filePath string, content []byte) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines := splitLines(string(content))

	var elements []Element
	name := DefaultSectionName
	start := 1

	flush := func(end int) {
		if end < start {
			return
		}
		body := lineSpan(lines, start, end)
		if isBlank(body) {
			return
		}
		elements = append(elements, newElement(filePath, p.Name(), name, KindMarkdownSection, start, end, body, ""))
	}

	for i, line := range lines {
		lineNo := i + 1
		heading, ok := headingText(line)
		if !ok {
			continue
		}
		flush(lineNo - 1)
		name = heading
		start = lineNo + 1
	}
	flush(len(lines))

	return elements, nil
}

// headingText reports whether line is a heading and returns its text.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	return strings.TrimSpace(strings.Trim(trimmed, "#")), true
}
