/**
 * @description
 * HTTP client for the headless-browser render service.
 * The scraper is an external collaborator: given a product URL it returns the
 * fully rendered page HTML. Its internals (browser automation) are out of
 * scope for this backend.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 */

package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mantis-project/backend/internal/config"
)

const (
	renderPath     = "/render"
	requestTimeout = 90 * time.Second // rendered pages can be slow behind bot walls
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type renderRequest struct {
	URL string `json:"url"`
}

type renderResponse struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.Extraction.ScraperURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// FetchPage asks the render service for the fully loaded HTML of url.
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(renderRequest{URL: url})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+renderPath, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("scraper request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("scraper response read failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scraper returned status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var result renderResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("scraper response decode failed: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("scraper error: %s", result.Error)
	}
	if result.Content == "" {
		return "", fmt.Errorf("scraper returned empty page for %s", url)
	}

	return result.Content, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
