package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tamalebot/tamalebot/internal/model"
)

const (
	webBrowseTimeout  = 30 * time.Second
	webBrowseCharCap  = 20_000
	webBrowseUserAgent = "tamalebot/1.0 (+https://tamalebot.example)"
)

var webBrowseSchema = model.ToolSchema{
	Name:        "web_browse",
	Description: "Fetch a URL and return its text content with markup stripped.",
	InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"url": map[string]any{"type": "string"}},
		"required":   []string{"url"},
	},
}

type webBrowseInput struct {
	URL string `mapstructure:"url"`
}

var (
	scriptStyleTagRe = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)>`)
	anyTagRe         = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespaceRunRe  = regexp.MustCompile(`\s+`)
)

func (e *Executor) execWebBrowse(ctx context.Context, raw map[string]any) model.ToolResult {
	var in webBrowseInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid web_browse arguments: %v", err)
	}
	if in.URL == "" {
		return errorResult("web_browse: \"url\" is required")
	}

	return e.mediate(model.ActionHTTPRequest, in.URL, func() (string, bool) {
		return fetchAndClean(ctx, in.URL)
	})
}

func fetchAndClean(ctx context.Context, url string) (string, bool) {
	fetchCtx, cancel := context.WithTimeout(ctx, webBrowseTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("failed to build request for %s: %v", url, err), true
	}
	req.Header.Set("User-Agent", webBrowseUserAgent)
	req.Header.Set("Accept", "text/html,text/plain,*/*")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Sprintf("failed to fetch %s: %v", url, err), true
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("fetch of %s returned status %d", url, resp.StatusCode), true
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20)) // 5 MiB raw-page ceiling before cleanup
	if err != nil {
		return fmt.Sprintf("failed to read response body from %s: %v", url, err), true
	}

	return truncate(cleanHTML(string(body)), webBrowseCharCap), false
}

// cleanHTML strips script/style blocks, then all remaining tags, then
// collapses whitespace runs (spec §4.5, "web_browse").
func cleanHTML(html string) string {
	stripped := scriptStyleTagRe.ReplaceAllString(html, "")
	stripped = anyTagRe.ReplaceAllString(stripped, " ")
	stripped = whitespaceRunRe.ReplaceAllString(stripped, " ")
	return strings.TrimSpace(stripped)
}
