// Package contextbuild assembles the user message sent to the model from
// the active file, @file references, URLs and the raw query.
package contextbuild

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sublimeassistant/engine/internal/fetch"
)

var (
	refPattern = regexp.MustCompile(`@([\w.\-]+\.[\w\-]+)`)
	urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)
)

// Resolver looks up an @name reference. A miss is (_, false, nil).
type Resolver interface {
	Resolve(name string) (string, bool, error)
}

// Fetcher retrieves URL content; failures are folded into the result.
type Fetcher interface {
	Fetch(ctx context.Context, url string) fetch.Result
}

// Input carries the editor-side state for one turn.
type Input struct {
	Query          string
	ActiveFile     string
	ActiveFilename string
	Selection      string
}

// Result is the assembled message content plus short hints the editor
// shows in the status bar.
type Result struct {
	Content string   `json:"content"`
	Hints   []string `json:"hints"`
}

type Builder struct {
	resolver Resolver
	fetcher  Fetcher
}

func NewBuilder(resolver Resolver, fetcher Fetcher) *Builder {
	return &Builder{resolver: resolver, fetcher: fetcher}
}

// Build assembles the context sections in a fixed order: active file,
// referenced files, fetched URLs, selection, then the query itself. A
// reference that cannot be resolved is reported inline and in the hints
// rather than dropped; it never aborts the turn. Each distinct reference
// and URL is processed once regardless of how often it appears.
func (b *Builder) Build(ctx context.Context, input Input) Result {
	var parts []string
	var hints []string

	if input.ActiveFile != "" {
		parts = append(parts, fmt.Sprintf("--- ACTIVE FILE (%s) ---\n%s", input.ActiveFilename, input.ActiveFile))
	}

	for _, name := range dedupe(refPattern.FindAllStringSubmatch(input.Query, -1)) {
		content, ok, err := b.resolve(name)
		if err == nil && ok {
			parts = append(parts, fmt.Sprintf("--- REFERENCED FILE: %s ---\n%s", name, content))
			hints = append(hints, "@"+name)
			continue
		}
		parts = append(parts, fmt.Sprintf("--- REFERENCED FILE: %s (NOT FOUND) ---", name))
		hints = append(hints, "@"+name+" (not found)")
	}

	for _, url := range dedupeStrings(urlPattern.FindAllString(input.Query, -1)) {
		result := b.fetchURL(ctx, url)
		parts = append(parts, fmt.Sprintf("--- FETCHED URL: %s ---\n%s", url, result.Content))
		if result.Failed {
			hints = append(hints, "url:"+url+" (failed)")
		} else {
			hints = append(hints, "url:"+url)
		}
	}

	if input.Selection != "" {
		parts = append(parts, "--- SELECTED CODE ---\n"+input.Selection)
		hints = append(hints, "selection")
	}

	parts = append(parts, "--- QUERY ---\n"+input.Query)

	return Result{Content: strings.Join(parts, "\n\n"), Hints: hints}
}

func (b *Builder) resolve(name string) (string, bool, error) {
	if b.resolver == nil {
		return "", false, nil
	}
	return b.resolver.Resolve(name)
}

func (b *Builder) fetchURL(ctx context.Context, url string) fetch.Result {
	if b.fetcher == nil {
		return fetch.Result{
			URL:     url,
			Content: fmt.Sprintf("[Error fetching %s: fetching disabled]", url),
			Failed:  true,
		}
	}
	return b.fetcher.Fetch(ctx, url)
}

func dedupe(matches [][]string) []string {
	var names []string
	seen := map[string]bool{}
	for _, match := range matches {
		name := match[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func dedupeStrings(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
