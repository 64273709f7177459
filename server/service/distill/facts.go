package distill

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// maxFacts caps how many list items become facts.
	maxFacts = 5
	// minFactLength drops list items too short to stand alone.
	minFactLength = 20
)

// factParser is shared: goldmark parsers hold only immutable configuration.
var factParser = goldmark.New().Parser()

// bulletLinePattern is the fallback for bullet styles markdown parsing does
// not recognize.
var bulletLinePattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)

// ExtractFacts pulls standalone facts from the markdown list items of text,
// in document order, each trimmed of its marker. Nested items count as their
// own facts.
func ExtractFacts(markdown string) []string {
	source := []byte(markdown)
	root := factParser.Parse(text.NewReader(source))

	var facts []string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if len(facts) >= maxFacts {
			return ast.WalkStop, nil
		}
		item, ok := n.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		if fact := listItemText(item, source); utf8.RuneCountInString(fact) >= minFactLength {
			facts = append(facts, fact)
		}
		return ast.WalkContinue, nil
	})

	if len(facts) == 0 {
		facts = extractFactLines(markdown)
	}
	return facts
}

// listItemText returns the text of the item's first block, leaving nested
// lists to be walked as their own items.
func listItemText(item *ast.ListItem, source []byte) string {
	for child := item.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() == ast.KindTextBlock || child.Kind() == ast.KindParagraph {
			return strings.TrimSpace(inlineText(child, source))
		}
	}
	return ""
}

// inlineText flattens the inline children of a block node into plain text.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if textNode, ok := child.(*ast.Text); ok {
			b.Write(textNode.Segment.Value(source))
			if textNode.SoftLineBreak() || textNode.HardLineBreak() {
				b.WriteByte(' ')
			}
			continue
		}
		if child.Kind() == ast.KindList {
			continue
		}
		b.WriteString(inlineText(child, source))
	}
	return b.String()
}

// extractFactLines is the line-based fallback for bullet characters outside
// the markdown list syntax.
func extractFactLines(markdown string) []string {
	var facts []string
	for _, line := range strings.Split(markdown, "\n") {
		if len(facts) >= maxFacts {
			break
		}
		match := bulletLinePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if fact := strings.TrimSpace(match[1]); utf8.RuneCountInString(fact) >= minFactLength {
			facts = append(facts, fact)
		}
	}
	return facts
}
