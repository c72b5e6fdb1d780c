// Package formatter normalizes crawled page content into Markdown, either
// through an OpenAI-compatible text-completion service or a local
// readability + html-to-markdown pipeline.
package formatter

import "context"

// Document is one crawled page handed to a Formatter.
type Document struct {
	Title   string
	URL     string
	Content string // extracted plain text, already truncated to the cap
	HTML    string // raw HTML snapshot
}

// Formatter turns one crawled page into Markdown. Implementations may fail;
// callers fall back to FallbackMarkdown and never abort a crawl over it.
type Formatter interface {
	Format(ctx context.Context, doc Document) (string, error)
}

// FallbackMarkdown is the deterministic template used whenever no formatter
// is configured or the configured one errors: a title heading, the raw
// extracted content, and a trailing source link line.
func FallbackMarkdown(title, url, content string) string {
	return "# " + title + "\n\n" + content + "\n\n[Source](" + url + ")\n"
}
