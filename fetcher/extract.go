package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ExtractText pulls readable text out of a rendered HTML document.
//
// Heuristic, intentionally not a full content-model parser:
//
//  1. optionally scope the document to a CSS selector override
//  2. drop script and style subtrees
//  3. pick the first available of <main>, <article>, or the full <body>
//  4. concatenate the non-empty text nodes beneath it, separated by blank
//     lines
//
// The second return value is false when nothing extractable was found.
func ExtractText(rawHTML string, selector string) (string, bool) {
	if selector != "" {
		if scoped, err := applyContentSelector(rawHTML, selector); err == nil {
			rawHTML = scoped
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", false
	}

	doc.Find("script, style, noscript").Remove()

	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("article").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		return "", false
	}

	var parts []string
	for _, node := range root.Nodes {
		collectText(node, &parts)
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n\n"), true
}

// collectText walks the node tree appending each non-empty text node.
func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			*parts = append(*parts, text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
