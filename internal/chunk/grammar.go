package chunk

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	importName    = "import"
	anonymousName = "anonymous"
)

// GrammarParser extracts functions, classes and imports with a tree-sitter grammar.
type GrammarParser struct {
	config   *LanguageConfig
	language *sitter.Language
}

// NewGrammarParser creates a parser for a registered language.
func NewGrammarParser(config *LanguageConfig, language *sitter.Language) *GrammarParser {
	return &GrammarParser{config: config, language: language}
}

// Name implements Parser.
func (p *GrammarParser) Name() string {
	return p.config.Name
}

// Parse implements Parser. Declarations are emitted depth-first in source order,
// so nested functions and methods appear after their enclosing declaration.
func (p *GrammarParser) Parse(ctx context.Context, filePath string, content []byte) ([]Element, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.language)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no syntax tree", filePath)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse %s: empty syntax tree", filePath)
	}

	lines := splitLines(string(content))
	var elements []Element
	p.walk(root, content, lines, filePath, &elements)
	return elements, nil
}

func (p *GrammarParser) walk(node *sitter.Node, src []byte, lines []string, filePath string, out *[]Element) {
	if node == nil {
		return
	}

	if kind, ok := p.config.kindOf(node.Type()); ok {
		start, end := nodeLines(node)
		body := lineSpan(lines, start, end)

		name := importName
		var doc string
		if kind != KindImport {
			name = p.declarationName(node, src)
			doc = p.docstring(node, src)
		}
		*out = append(*out, newElement(filePath, p.config.Name, name, kind, start, end, body, doc))
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		p.walk(node.NamedChild(i), src, lines, filePath, out)
	}
}

// nodeLines returns the 1-indexed inclusive line range covered by node.
func nodeLines(node *sitter.Node) (int, int) {
	start := int(node.StartPoint().Row) + 1
	endPoint := node.EndPoint()
	end := int(endPoint.Row) + 1
	// A node ending at column 0 stops at the previous line's terminator.
	if endPoint.Column == 0 && end > start {
		end--
	}
	return start, end
}

func (p *GrammarParser) declarationName(node *sitter.Node, src []byte) string {
	if nameNode := node.ChildByFieldName("name"); nameNode != nil {
		if name := strings.TrimSpace(nameNode.Content(src)); name != "" {
			return name
		}
	}

	// Go: type_declaration wraps one or more type_spec nodes.
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child == nil || (child.Type() != "type_spec" && child.Type() != "type_alias") {
			continue
		}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			if name := strings.TrimSpace(nameNode.Content(src)); name != "" {
				return name
			}
		}
	}

	return anonymousName
}

func (p *GrammarParser) docstring(node *sitter.Node, src []byte) string {
	if p.config.CommentDocs {
		return commentDoc(node, src)
	}
	return bodyDoc(node, src)
}

// bodyDoc returns the string literal that opens a declaration body, if any.
func bodyDoc(node *sitter.Node, src []byte) string {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ""
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		if stmt == nil || stmt.Type() == "comment" {
			continue
		}
		if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
			return ""
		}
		expr := stmt.NamedChild(0)
		if expr == nil || (expr.Type() != "string" && expr.Type() != "concatenated_string") {
			return ""
		}
		return stripQuotes(expr.Content(src))
	}
	return ""
}

// commentDoc returns the contiguous line-comment block directly above node.
func commentDoc(node *sitter.Node, src []byte) string {
	var block []string
	line := node.StartPoint().Row

	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Type() != "comment" || prev.EndPoint().Row+1 != line {
			break
		}
		text := prev.Content(src)
		if !strings.HasPrefix(text, "//") {
			break
		}
		block = append(block, strings.TrimSpace(strings.TrimPrefix(text, "//")))
		line = prev.StartPoint().Row
	}

	for i, j := 0, len(block)-1; i < j; i, j = i+1, j-1 {
		block[i], block[j] = block[j], block[i]
	}
	return strings.TrimSpace(strings.Join(block, "\n"))
}

// stripQuotes trims every quote character from both ends, so a docstring that
// ends in a quote loses it too ("Return 'x'" becomes "Return 'x"). Stored
// docstrings depend on this exact trimming.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "rRbBuUfF")
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}
