/**
 * @description
 * HTML-to-text reduction for extraction prompts.
 * Strips script/style/navigation noise and collapses the remaining text so
 * the page fits in the model context.
 *
 * @dependencies
 * - golang.org/x/net/html
 */

package llm

import (
	"strings"

	"golang.org/x/net/html"
)

// Tags whose entire subtree is noise for product extraction
var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"footer":   true,
	"nav":      true,
	"svg":      true,
	"iframe":   true,
}

// ReduceHTML strips markup from page content and returns plain text truncated
// to maxChars characters. Falls back to the raw input (truncated) if the page
// is not parseable HTML.
func ReduceHTML(pageContent string, maxChars int) string {
	doc, err := html.Parse(strings.NewReader(pageContent))
	if err != nil {
		return truncateText(strings.TrimSpace(pageContent), maxChars)
	}

	var b strings.Builder
	collectText(doc, &b)

	lines := strings.Split(b.String(), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}

	return truncateText(strings.Join(kept, "\n"), maxChars)
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && skippedTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString("\n")
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
}

func truncateText(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
