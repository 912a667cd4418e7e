package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// htmlToText renders the visible text of an HTML document, one block per
// line. It is the last extraction fallback when no answer container and no
// body text could be read through the page.
func htmlToText(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var builder strings.Builder
	writeText(doc, &builder)
	return builder.String(), nil
}

// writeText recursively appends the text of n, skipping non-visible
// elements and breaking lines around block elements.
func writeText(n *html.Node, builder *strings.Builder) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return
		}
		if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if isSkippedElement(tag) {
			return
		}
		if tag == "br" {
			builder.WriteString("\n")
			return
		}
		block := isBlockElement(tag)
		if block {
			breakLine(builder)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(c, builder)
		}
		if block {
			breakLine(builder)
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, builder)
	}
}

func breakLine(builder *strings.Builder) {
	if builder.Len() > 0 && !strings.HasSuffix(builder.String(), "\n") {
		builder.WriteString("\n")
	}
}

// isSkippedElement returns true for elements whose text is never shown
func isSkippedElement(tagName string) bool {
	switch tagName {
	case "head", "script", "style", "noscript", "template", "iframe",
		"embed", "object", "svg", "button", "nav", "form":
		return true
	}
	return false
}

// isBlockElement returns true for block-level elements
func isBlockElement(tagName string) bool {
	switch tagName {
	case "div", "p", "section", "article", "header", "footer", "main",
		"aside", "h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li",
		"table", "tr", "blockquote", "pre":
		return true
	}
	return false
}
