package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/use-agent/clustercrawl/formatter"
)

// fakePage implements Page with scripted outcomes.
type fakePage struct {
	navErr    error
	waitErr   error
	title     string
	titleErr  error
	html      string
	htmlErr   error
	closed    bool
	navigated string
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.navigated = url
	return p.navErr
}
func (p *fakePage) WaitStable(context.Context) error { return p.waitErr }
func (p *fakePage) Title() (string, error)           { return p.title, p.titleErr }
func (p *fakePage) HTML() (string, error)            { return p.html, p.htmlErr }
func (p *fakePage) Screenshot(string) error          { return nil }
func (p *fakePage) Close() error {
	p.closed = true
	return nil
}

// fakeSession hands out a fixed page, or fails.
type fakeSession struct {
	page    *fakePage
	pageErr error
	closed  bool
}

func (s *fakeSession) NewPage(context.Context) (Page, error) {
	if s.pageErr != nil {
		return nil, s.pageErr
	}
	return s.page, nil
}
func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// errFormatter always fails.
type errFormatter struct{}

func (errFormatter) Format(context.Context, formatter.Document) (string, error) {
	return "", errors.New("formatter down")
}

// captureFormatter records the document it was handed.
type captureFormatter struct {
	doc formatter.Document
}

func (f *captureFormatter) Format(_ context.Context, doc formatter.Document) (string, error) {
	f.doc = doc
	return "formatted markdown", nil
}

const samplePage = `<html><head><title>ignored</title></head>` +
	`<body><main><p>First paragraph.</p><p>Second paragraph.</p></main></body></html>`

func newTestFetcher(t *testing.T, f formatter.Formatter) *PageFetcher {
	t.Helper()
	pf, err := New(f, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pf
}

func TestFetch_Success(t *testing.T) {
	page := &fakePage{title: "Example Title", html: samplePage}
	sess := &fakeSession{page: page}
	pf := newTestFetcher(t, nil)

	res := pf.Fetch(context.Background(), sess, "https://example.com/post")

	if res.URL != "https://example.com/post" {
		t.Errorf("URL = %q", res.URL)
	}
	if res.Title != "Example Title" {
		t.Errorf("Title = %q", res.Title)
	}
	if res.Content != "First paragraph.\n\nSecond paragraph." {
		t.Errorf("Content = %q", res.Content)
	}
	want := "# Example Title\n\nFirst paragraph.\n\nSecond paragraph.\n\n[Source](https://example.com/post)\n"
	if res.Markdown != want {
		t.Errorf("Markdown = %q, want %q", res.Markdown, want)
	}
	if !page.closed {
		t.Error("page not closed after fetch")
	}
	if page.navigated != "https://example.com/post" {
		t.Errorf("navigated to %q", page.navigated)
	}
}

func TestFetch_NavigationErrorIsSoft(t *testing.T) {
	page := &fakePage{
		navErr: errors.New("net::ERR_CONNECTION_REFUSED"),
		title:  "Partial",
		html:   samplePage,
	}
	sess := &fakeSession{page: page}
	pf := newTestFetcher(t, nil)

	res := pf.Fetch(context.Background(), sess, "https://down.example.com/")

	if res == nil {
		t.Fatal("navigation error must still produce a result")
	}
	if res.Title != "Partial" {
		t.Errorf("Title = %q; later stages should still run", res.Title)
	}
	if !page.closed {
		t.Error("page not closed after degraded fetch")
	}
}

func TestFetch_TitleFallsBackToHostname(t *testing.T) {
	tests := []struct {
		name string
		page *fakePage
	}{
		{"title error", &fakePage{titleErr: errors.New("eval failed"), html: samplePage}},
		{"empty title", &fakePage{title: "   ", html: samplePage}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &fakeSession{page: tt.page}
			pf := newTestFetcher(t, nil)

			res := pf.Fetch(context.Background(), sess, "https://fallback.example.com/a/b")
			if res.Title != "fallback.example.com" {
				t.Errorf("Title = %q, want hostname", res.Title)
			}
		})
	}
}

func TestFetch_HTMLErrorUsesPlaceholders(t *testing.T) {
	page := &fakePage{title: "T", htmlErr: errors.New("target crashed")}
	sess := &fakeSession{page: page}
	pf := newTestFetcher(t, nil)

	res := pf.Fetch(context.Background(), sess, "https://example.com/")

	if res.HTML != placeholderHTML {
		t.Errorf("HTML = %q, want placeholder", res.HTML)
	}
	// The placeholder document itself extracts, so content comes from it.
	if res.Content != "Content could not be retrieved." {
		t.Errorf("Content = %q", res.Content)
	}
	if !page.closed {
		t.Error("page not closed")
	}
}

func TestFetch_PageCreationFailure(t *testing.T) {
	sess := &fakeSession{pageErr: errors.New("browser context gone")}
	pf := newTestFetcher(t, nil)

	res := pf.Fetch(context.Background(), sess, "https://example.com/x")

	if res == nil {
		t.Fatal("page creation failure must still produce a result")
	}
	if res.Title != "example.com" {
		t.Errorf("Title = %q, want hostname", res.Title)
	}
	if res.HTML != placeholderHTML || res.Content != placeholderContent {
		t.Errorf("expected placeholders, got HTML=%q Content=%q", res.HTML, res.Content)
	}
	if res.Markdown == "" {
		t.Error("degraded result must still carry markdown")
	}
}

func TestFetch_FormatterErrorFallsBack(t *testing.T) {
	page := &fakePage{title: "T", html: samplePage}
	sess := &fakeSession{page: page}
	pf := newTestFetcher(t, errFormatter{})

	res := pf.Fetch(context.Background(), sess, "https://example.com/")

	want := formatter.FallbackMarkdown(res.Title, res.URL, res.Content)
	if res.Markdown != want {
		t.Errorf("Markdown = %q, want fallback %q", res.Markdown, want)
	}
}

func TestFetch_FormatterGetsTruncatedContent(t *testing.T) {
	long := strings.Repeat("x", 100)
	page := &fakePage{
		title: "T",
		html:  "<html><body><main><p>" + long + "</p></main></body></html>",
	}
	sess := &fakeSession{page: page}

	capture := &captureFormatter{}
	pf, err := New(capture, Config{MaxContentChars: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := pf.Fetch(context.Background(), sess, "https://example.com/")

	if len(capture.doc.Content) != 10 {
		t.Errorf("formatter received %d chars, want 10", len(capture.doc.Content))
	}
	if res.Content != long {
		t.Error("stored content must not be truncated")
	}
	if res.Markdown != "formatted markdown" {
		t.Errorf("Markdown = %q", res.Markdown)
	}
}

func TestNew_InvalidSelector(t *testing.T) {
	if _, err := New(nil, Config{ContentSelector: "??bad selector"}); err == nil {
		t.Error("expected error for invalid content selector")
	}
}

func TestHostnameOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/path", "example.com"},
		{"http://sub.host.io:8080/", "sub.host.io"},
		{"not a url", "not a url"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := hostnameOf(tt.in); got != tt.want {
			t.Errorf("hostnameOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 0, "hello"},
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.s, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
