/**
 * @description
 * LLM-backed product extraction client.
 * Sends reduced page text to an OpenAI-compatible chat completions endpoint
 * (per-user provider + key + model) and parses the structured product facts
 * out of the JSON response.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 *
 * @notes
 * - Credentials are passed per call; this client holds no API key of its own.
 * - Retries transient failures (429, 5xx, read/decode errors) with backoff.
 */

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mantis-project/backend/internal/config"
	"github.com/mantis-project/backend/internal/logger"
)

const (
	requestTimeout  = 120 * time.Second
	defaultMaxChars = 15000
	maxExtractTries = 3
	retryBaseDelay  = 400 * time.Millisecond
)

var (
	errResponseRead   = errors.New("llm response read failed")
	errResponseDecode = errors.New("llm response decode failed")
	errRetryable      = errors.New("llm api retryable error")
)

const systemPrompt = `You extract product listing facts from e-commerce page text.
Respond with a single JSON object with exactly these fields:
"title" (string, canonical product title),
"price" (number, numeric price without currency symbols),
"currency" (string, ISO 4217 code, or the symbol if the code is unknown),
"stock_status" (string, one of "In Stock", "Out of Stock", "Unknown"),
"website" (string, the site's domain name, or null if unclear).
Use the most prominent current offer. Do not invent values.`

// Extraction is the structured result of one LLM extraction call
type Extraction struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	StockStatus string  `json:"stock_status"`
	Website     string  `json:"website,omitempty"`
}

type Client struct {
	httpClient *http.Client
	maxChars   int
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message      message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func NewClient(cfg *config.Config) *Client {
	maxChars := cfg.Extraction.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		maxChars: maxChars,
	}
}

// Extract reduces the page HTML to text and asks the configured provider for
// the structured product facts.
func (c *Client) Extract(ctx context.Context, creds Credentials, pageContent string) (*Extraction, error) {
	provider, err := LookupProvider(creds.Provider)
	if err != nil {
		return nil, err
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("api key is required for provider '%s'", creds.Provider)
	}
	if creds.Model == "" {
		return nil, fmt.Errorf("model is required for provider '%s'", creds.Provider)
	}

	text := ReduceHTML(pageContent, c.maxChars)
	if text == "" {
		return nil, fmt.Errorf("page reduced to empty text, nothing to extract")
	}

	payload := chatRequest{
		Model: creds.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.1,
		// Enforce JSON output format
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxExtractTries; attempt++ {
		content, err := c.chatOnce(ctx, provider.ChatURL, creds.APIKey, bodyBytes)
		if err == nil {
			return parseExtraction(content)
		}
		lastErr = err
		if attempt >= maxExtractTries || !isRetryableError(err) {
			return nil, err
		}
		logger.Info("Retrying extraction request after error (attempt %d/%d): %v", attempt, maxExtractTries, err)
		time.Sleep(retryBaseDelay * time.Duration(attempt))
	}

	return nil, lastErr
}

// ListModels fetches the model identifiers available to the given key.
func (c *Client) ListModels(ctx context.Context, providerName, apiKey string) ([]string, error) {
	provider, err := LookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.ModelsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model listing request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errResponseRead, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model listing returned status %d", resp.StatusCode)
	}

	var result modelListResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", errResponseDecode, err)
	}

	models := make([]string, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// TestConnection performs a trivial completion to verify credentials work.
func (c *Client) TestConnection(ctx context.Context, creds Credentials) error {
	provider, err := LookupProvider(creds.Provider)
	if err != nil {
		return err
	}

	payload := chatRequest{
		Model: creds.Model,
		Messages: []message{
			{Role: "user", Content: "Reply with the single word: ok"},
		},
		Temperature: 0,
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := c.chatOnce(ctx, provider.ChatURL, creds.APIKey, bodyBytes); err != nil {
		return err
	}
	return nil
}

func (c *Client) chatOnce(ctx context.Context, url, apiKey string, bodyBytes []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", fmt.Errorf("%w: %v", errResponseRead, readErr)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Error("LLM API error: %d - %s", resp.StatusCode, truncateForLog(string(respBody), 500))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return "", fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
		}
		return "", fmt.Errorf("llm api returned status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		logger.Error("Failed to decode LLM response: %v | raw: %s", err, truncateForLog(string(respBody), 500))
		return "", fmt.Errorf("%w: %v", errResponseDecode, err)
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from llm")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("llm response missing content (finish_reason: %s)", result.Choices[0].FinishReason)
	}

	return content, nil
}

// parseExtraction decodes the model output, tolerating markdown code fences
// that some models wrap around JSON despite the response_format hint.
func parseExtraction(content string) (*Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var extraction Extraction
	if err := json.Unmarshal([]byte(content), &extraction); err != nil {
		return nil, fmt.Errorf("invalid extraction output: %w", err)
	}
	if extraction.Title == "" {
		return nil, fmt.Errorf("extraction output missing title")
	}
	if extraction.Price < 0 {
		return nil, fmt.Errorf("extraction output has negative price %f", extraction.Price)
	}
	if extraction.Currency == "" {
		return nil, fmt.Errorf("extraction output missing currency")
	}
	return &extraction, nil
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errResponseRead) || errors.Is(err, errResponseDecode) || errors.Is(err, errRetryable) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func truncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "...(truncated)"
}
