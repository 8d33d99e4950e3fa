package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 1 << 10

// Client forwards questions to the external answer backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client from configuration. A zero Timeout leaves the
// request unbounded.
func NewClient(cfg config.RAGConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer  *string `json:"answer"`
	Success *bool   `json:"success"`
	Error   string  `json:"error"`
	Details string  `json:"details"`
}

// Ask sends one question and returns the backend's answer unchanged. It makes
// exactly one attempt.
func (c *Client) Ask(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", &Error{Kind: ErrInvalidInput}
	}

	payload, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[answer] backend unreachable: %v", err)
		return "", &Error{Kind: ErrBackendUnavailable, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: ErrBackendUnavailable, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[answer] backend responded with status %d", resp.StatusCode)
		return "", &Error{Kind: ErrBackendError, Status: resp.StatusCode, Message: truncateBody(body)}
	}

	var parsed askResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &Error{Kind: ErrBackendError, Status: resp.StatusCode, Message: "unexpected response body", Err: err}
	}

	if parsed.Success != nil && !*parsed.Success {
		reason := parsed.Error
		if parsed.Details != "" {
			if reason != "" {
				reason += ": "
			}
			reason += parsed.Details
		}
		return "", &Error{Kind: ErrBackendRejected, Message: reason}
	}

	if parsed.Answer == nil {
		return "", &Error{Kind: ErrBackendError, Status: resp.StatusCode, Message: "response has no answer"}
	}

	log.Printf("[answer] answered in %s, length=%d", time.Since(start).Round(time.Millisecond), len(*parsed.Answer))
	return *parsed.Answer, nil
}

func truncateBody(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxErrorBody {
		return text
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
