package formatter

import (
	"context"
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/clustercrawl/models"
)

// minArticleLength is the minimum readability TextContent length (in
// characters) for the extracted article to be trusted. Below it we convert
// the full HTML snapshot instead.
const minArticleLength = 50

// Local converts the page's HTML snapshot to Markdown without any external
// service: readability isolates the main article, html-to-markdown renders
// it. Deterministic, so suitable for runs with no LLM key.
//
// The converter is created once and reused across all fetches
// (goroutine-safe).
type Local struct {
	conv *converter.Converter
}

// NewLocal initialises the Local formatter with a pre-configured converter:
//
//   - base plugin: strips script, style, iframe, noscript, head, meta, link,
//     input, textarea and HTML comments.
//   - commonmark plugin: standard Markdown rendering.
//   - table plugin with minimal cell padding: keeps tabular structure intact
//     while saving tokens for downstream LLM consumers.
func NewLocal() *Local {
	return &Local{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(
					table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
				),
			),
		),
	}
}

// Format renders doc.HTML as Markdown, prefixed with the title heading and
// suffixed with the source link so the output shape matches the AI formatter.
func (l *Local) Format(_ context.Context, doc Document) (string, error) {
	if strings.TrimSpace(doc.HTML) == "" {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "no HTML to convert", nil)
	}

	body, err := l.conv.ConvertString(extractArticle(doc.HTML, doc.URL), converter.WithDomain(doc.URL))
	if err != nil {
		return "", models.NewCrawlError(models.ErrCodeFormatting, "markdown conversion failed", err)
	}

	var sb strings.Builder
	sb.WriteString("# " + doc.Title + "\n\n")
	sb.WriteString(strings.TrimSpace(body))
	sb.WriteString("\n\n[Source](" + doc.URL + ")\n")
	return sb.String(), nil
}

// extractArticle runs the Mozilla Readability algorithm and returns the main
// content HTML. Any failure, or suspiciously short output, falls back to the
// full snapshot — conversion must never fail just because readability choked.
func extractArticle(rawHTML, sourceURL string) string {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		return rawHTML
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		slog.Debug("readability extraction failed, converting full snapshot",
			"url", sourceURL, "error", err,
		)
		return rawHTML
	}

	if len(strings.TrimSpace(article.TextContent)) < minArticleLength {
		return rawHTML
	}
	return article.Content
}
