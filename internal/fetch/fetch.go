// Package fetch retrieves URL content for conversation context and the
// fetch_url tool.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	userAgent       = "SublimeAssistant/1.0"
	TruncationNote  = "\n\n[... content truncated to fit context window ...]"
	maxBodyBytes    = 10 * 1024 * 1024
	defaultMaxChars = 80000
)

// ErrTimeout marks a fetch that ran past its own deadline. It is distinct
// from the chat request timeout so callers can report the two separately.
var ErrTimeout = errors.New("fetch timed out")

var blankLines = regexp.MustCompile(`\n{3,}`)

// Result is the outcome of one fetch. Failed fetches still produce a
// Content string (the error marker) so tool results and context parts
// always have something to show.
type Result struct {
	URL       string `json:"url"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Failed    bool   `json:"failed"`
}

type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxChars int
}

func New(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Fetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxChars: maxChars,
	}
}

// Fetch retrieves url, extracting readable text from HTML responses and
// capping the result at the configured character ceiling. Failures are
// folded into the result, never returned as errors: a bad URL becomes an
// error marker the model (or the user) can read.
func (f *Fetcher) Fetch(ctx context.Context, url string) Result {
	content, truncated, err := f.fetch(ctx, url)
	if err != nil {
		return Result{
			URL:     url,
			Content: fmt.Sprintf("[Error fetching %s: %s]", url, errorText(err)),
			Failed:  true,
		}
	}
	return Result{URL: url, Content: content, Truncated: truncated}
}

func (f *Fetcher) fetch(ctx context.Context, url string) (string, bool, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", false, fmt.Errorf("unsupported URL scheme")
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", false, ErrTimeout
		}
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return "", false, ErrTimeout
		}
		return "", false, err
	}
	text := string(body)
	if isHTML(resp.Header.Get("Content-Type"), text) {
		text = htmlToText(text)
	}
	text = strings.TrimSpace(text)
	if len(text) > f.maxChars {
		// The ceiling counts characters, not bytes; cutting mid-rune
		// would hand the model invalid UTF-8.
		if runes := []rune(text); len(runes) > f.maxChars {
			return string(runes[:f.maxChars]) + TruncationNote, true, nil
		}
	}
	return text, false, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorText(err error) string {
	if errors.Is(err, ErrTimeout) {
		return "request timed out"
	}
	return err.Error()
}

func isHTML(contentType, body string) bool {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return true
	}
	head := strings.ToLower(body)
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.Contains(head, "<html")
}

var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

// htmlToText walks the parse tree collecting text nodes, inserting line
// breaks at block boundaries and collapsing runs of blank lines.
func htmlToText(raw string) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	var builder strings.Builder
	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && skippedElements[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
		}
		if node.Type == html.ElementNode && blockElements[node.Data] {
			builder.WriteString("\n")
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && blockElements[node.Data] {
			builder.WriteString("\n")
		}
	}
	walk(doc)
	text := builder.String()
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
