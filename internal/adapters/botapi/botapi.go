// Package botapi implements outbound delivery to the bot-api chat platform
// (spec.md §4.6/§6). Grounded on the teacher's applications/httpapi client
// idiom: a thin *http.Client wrapper with an explicit timeout, no generic
// HTTP framework, since the teacher's own outbound calls (sdk/go/client)
// use net/http directly rather than a third-party REST client.
package botapi

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

// Client sends messages through the bot-api HTTP API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
}

// New builds a Client. baseURL defaults to the bot-api's standard endpoint
// when empty, so tests can point it at a local fake server.
func New(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.bot-platform.example/bot" + token
	}
	return &Client{token: token, baseURL: baseURL, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

type sendMessageRequest struct {
	ChatID      string             `json:"chat_id"`
	Text        string             `json:"text"`
	ParseMode   string             `json:"parse_mode"`
	ReplyMarkup *inlineKeyboard    `json:"reply_markup,omitempty"`
}

type inlineKeyboard struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// Send delivers content to recipientID (the platform chat id as a string).
func (c *Client) Send(ctx context.Context, recipientID string, content outbox.Content) error {
	req := sendMessageRequest{
		ChatID:    recipientID,
		Text:      markup.HTMLToBotAPI(content.Text),
		ParseMode: "HTML",
	}
	if content.Keyboard != nil {
		req.ReplyMarkup = toInlineKeyboard(content.Keyboard)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "שגיאה בקידוד ההודעה", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת הבקשה", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperr.Wrap(apperr.CodeUpstreamUnavailable, "שירות ההודעות אינו זמין", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		// Rate-limited: transient, the outbox worker retries with backoff
		// (spec.md §4.7 step 6).
		return apperr.New(apperr.CodeUpstreamUnavailable, "bot-api rate limited: 429")
	}
	if resp.StatusCode >= 500 {
		return apperr.New(apperr.CodeUpstream5xx, fmt.Sprintf("bot-api 5xx: %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		// Other 4xx from the platform (bad chat id, blocked bot, malformed
		// payload) is permanent: retrying the same content will not help.
		return apperr.New(apperr.CodeValidation, fmt.Sprintf("bot-api rejected message: %d", resp.StatusCode))
	}
	return nil
}

func toInlineKeyboard(k *outbox.Keyboard) *inlineKeyboard {
	out := &inlineKeyboard{InlineKeyboard: make([][]inlineButton, len(k.Rows))}
	for i, row := range k.Rows {
		buttons := make([]inlineButton, len(row))
		for j, b := range row {
			buttons[j] = inlineButton{Text: b.Label, CallbackData: b.Callback}
		}
		out.InlineKeyboard[i] = buttons
	}
	return out
}
