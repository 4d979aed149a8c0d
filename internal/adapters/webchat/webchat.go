// Package webchat implements outbound delivery to the web-chat gateway
// (spec.md §4.6/§6), mirroring internal/adapters/botapi's net/http idiom.
package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dispatchcore/platform/internal/adapters/markup"
	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
)

// Client sends messages through the web-chat gateway's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client against baseURL (the configured web-chat gateway
// endpoint).
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type sendRequest struct {
	SessionID string            `json:"session_id"`
	Markdown  string            `json:"markdown"`
	Buttons   [][]webchatButton `json:"buttons,omitempty"`
}

type webchatButton struct {
	Label    string `json:"label"`
	Callback string `json:"callback"`
}

// Send delivers content to recipientID (the web-chat session id).
func (c *Client) Send(ctx context.Context, recipientID string, content outbox.Content) error {
	req := sendRequest{SessionID: recipientID, Markdown: markup.HTMLToWebChatMarkdown(content.Text)}
	if content.Keyboard != nil {
		req.Buttons = toButtons(content.Keyboard)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "שגיאה בקידוד ההודעה", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת הבקשה", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Wrap(apperr.CodeUpstreamUnavailable, "שער הצ'אט אינו זמין", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return apperr.New(apperr.CodeUpstreamUnavailable, "web-chat rate limited: 429")
	}
	if resp.StatusCode >= 500 {
		return apperr.New(apperr.CodeUpstream5xx, fmt.Sprintf("web-chat 5xx: %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("web-chat rejected message: %d", resp.StatusCode))
	}
	return nil
}

func toButtons(k *outbox.Keyboard) [][]webchatButton {
	out := make([][]webchatButton, len(k.Rows))
	for i, row := range k.Rows {
		buttons := make([]webchatButton, len(row))
		for j, b := range row {
			buttons[j] = webchatButton{Label: b.Label, Callback: b.Callback}
		}
		out[i] = buttons
	}
	return out
}
