// Package browser gives the agent read access to the web. A Fetcher loads a
// page (Chrome via go-rod, or an MCP server) and Browser turns it into plain
// text for the model.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/m4xw311/superagent/errors"
)

// Fetcher loads a URL and returns the rendered document. It may return HTML
// or already-extracted text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Close() error
}

type Options struct {
	// SearchURL is prefixed to the escaped query, e.g.
	// https://duckduckgo.com/html/?q=
	SearchURL string
	// MaxChars caps returned text; zero means unlimited.
	MaxChars int
	Logger   *slog.Logger
}

type Browser struct {
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

func New(fetcher Fetcher, opts Options) *Browser {
	if opts.SearchURL == "" {
		opts.SearchURL = "https://duckduckgo.com/html/?q="
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Browser{fetcher: fetcher, opts: opts, logger: opts.Logger}
}

// Open loads rawURL and returns its text content.
func (b *Browser) Open(ctx context.Context, rawURL string) (string, error) {
	target, err := normalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	text, err := b.load(ctx, target)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Content of %s:\n\n%s", target, text), nil
}

// Search runs query on the search engine and opens the first result. If the
// results page has no usable link its own text is returned.
func (b *Browser) Search(ctx context.Context, query string) (string, error) {
	searchURL := b.opts.SearchURL + url.QueryEscape(query)
	page, err := b.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return "", errors.Wrapf(err, "search for %q failed", query)
	}

	links := ResultLinks(page, searchURL)
	if len(links) == 0 {
		b.logger.Debug("no result links on search page", "query", query)
		return fmt.Sprintf("Search results for %q:\n\n%s", query, b.limit(ExtractText(page))), nil
	}

	first := links[0]
	b.logger.Debug("opening first search result", "query", query, "url", first)
	text, err := b.load(ctx, first)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Searched for %q and opened the first result, %s:\n\n%s", query, first, text), nil
}

func (b *Browser) load(ctx context.Context, target string) (string, error) {
	doc, err := b.fetcher.Fetch(ctx, target)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", target)
	}
	text := ExtractText(doc)
	if text == "" {
		return "(the page has no text content)", nil
	}
	return b.limit(text), nil
}

func (b *Browser) limit(text string) string {
	max := b.opts.MaxChars
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return string(runes[:max]) + fmt.Sprintf("\n\n[content truncated, %d more characters]", len(runes)-max)
}

func (b *Browser) Close() error {
	if b.fetcher == nil {
		return nil
	}
	return b.fetcher.Close()
}

func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrapf(err, "invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("unsupported url scheme %q, only http and https are allowed", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url %q has no host", raw)
	}
	return u.String(), nil
}
