package coretools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/harun/coda/pkg/dispatcher"
)

const (
	maxFetchChars    = 50000
	maxSearchResults = 10
	webUserAgent     = "coda/0.1"
)

// searchBaseURL is the DuckDuckGo HTML endpoint; swapped out in tests.
var searchBaseURL = "https://html.duckduckgo.com/html/"

func httpClient(opts Options) *http.Client {
	if opts.HTTPClient != nil {
		return opts.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func webFetchTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name: "web_fetch",
		Description: "Fetch content from a URL. Use this to read documentation " +
			"pages, fetch API responses or get content from public web pages. " +
			"Won't work for pages behind a login.",
		Category: dispatcher.CategoryNetwork,
		Parameters: []dispatcher.ToolParameter{
			{Name: "url", Type: "string", Description: "The URL to fetch", Required: true},
			{Name: "prompt", Type: "string", Description: "What information to extract from the page", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			raw, _ := params["url"].(string)
			target, err := normalizeURL(raw)
			if err != nil {
				return nil, err
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return nil, fmt.Errorf("invalid URL: %w", err)
			}
			req.Header.Set("User-Agent", webUserAgent)

			resp, err := httpClient(opts).Do(req)
			if err != nil {
				return nil, fmt.Errorf("fetch failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("fetch failed: %s returned %s", target, resp.Status)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
			if err != nil {
				return nil, fmt.Errorf("failed to read response: %w", err)
			}

			text := string(body)
			if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
				text = htmlToText(text)
			}

			if len(text) > maxFetchChars {
				text = text[:maxFetchChars] + "\n\n... (truncated)"
			}
			return text, nil
		},
	}
}

func webSearchTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web and return result titles, URLs and snippets.",
		Category:    dispatcher.CategoryNetwork,
		Parameters: []dispatcher.ToolParameter{
			{Name: "query", Type: "string", Description: "Search query", Required: true},
			{Name: "max_results", Type: "number", Description: "Maximum number of results (default 5, max 10)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}

			limit := 5
			if v, ok := params["max_results"].(float64); ok && v > 0 {
				limit = int(v)
			}
			if limit > maxSearchResults {
				limit = maxSearchResults
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				searchBaseURL+"?q="+url.QueryEscape(query), nil)
			if err != nil {
				return nil, fmt.Errorf("invalid search request: %w", err)
			}
			req.Header.Set("User-Agent", webUserAgent)

			resp, err := httpClient(opts).Do(req)
			if err != nil {
				return nil, fmt.Errorf("search failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("search failed: %s", resp.Status)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
			if err != nil {
				return nil, fmt.Errorf("failed to read search response: %w", err)
			}

			results := parseSearchResults(string(body), limit)
			if len(results) == 0 {
				return fmt.Sprintf("No search results found for: %s", query), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Search results for: %s\n\n", query)
			for i, r := range results {
				fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n", i+1, r.title, r.url)
				if r.snippet != "" {
					fmt.Fprintf(&sb, "   %s\n", r.snippet)
				}
				sb.WriteString("\n")
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	}
}

// normalizeURL defaults missing schemes to https and rejects anything but
// http(s).
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" {
		raw = "https://" + raw
		parsed, err = url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("invalid URL scheme: %s", parsed.Scheme)
	}
	return raw, nil
}

type searchResult struct {
	title   string
	url     string
	snippet string
}

var (
	resultLinkRe    = regexp.MustCompile(`<a rel="nofollow" class="result__a" href="([^"]+)"[^>]*>([^<]+)</a>`)
	resultSnippetRe = regexp.MustCompile(`<a class="result__snippet"[^>]*>([^<]+)</a>`)
)

func parseSearchResults(html string, limit int) []searchResult {
	links := resultLinkRe.FindAllStringSubmatch(html, -1)
	snippets := resultSnippetRe.FindAllStringSubmatch(html, -1)

	var results []searchResult
	for i, m := range links {
		if i >= limit {
			break
		}
		r := searchResult{title: strings.TrimSpace(m[2]), url: m[1]}
		if i < len(snippets) {
			r.snippet = strings.TrimSpace(snippets[i][1])
		}
		// Unwrap the redirect URLs the search endpoint hands back.
		if parsed, err := url.Parse(r.url); err == nil {
			if direct := parsed.Query().Get("uddg"); direct != "" {
				r.url = direct
			}
		}
		results = append(results, r)
	}
	return results
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	brRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	pRe       = regexp.MustCompile(`(?i)</?p[^>]*>`)
	divRe     = regexp.MustCompile(`(?i)</?div[^>]*>`)
	liRe      = regexp.MustCompile(`(?i)<li[^>]*>`)
	hOpenRe   = regexp.MustCompile(`(?i)<h[1-6][^>]*>`)
	hCloseRe  = regexp.MustCompile(`(?i)</h[1-6]>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// htmlToText is a rough HTML-to-text conversion: block elements become
// line breaks, headings become markdown headers, everything else is
// stripped.
func htmlToText(html string) string {
	html = scriptRe.ReplaceAllString(html, "")
	html = styleRe.ReplaceAllString(html, "")

	html = brRe.ReplaceAllString(html, "\n")
	html = pRe.ReplaceAllString(html, "\n\n")
	html = divRe.ReplaceAllString(html, "\n")
	html = liRe.ReplaceAllString(html, "\n- ")
	html = hOpenRe.ReplaceAllString(html, "\n\n## ")
	html = hCloseRe.ReplaceAllString(html, "\n")

	html = tagRe.ReplaceAllString(html, "")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	html = replacer.Replace(html)

	var lines []string
	for _, line := range strings.Split(html, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	text := strings.Join(lines, "\n")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
