package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/services/webhook"
)

// maxWebhookBodyBytes guards against an adapter (or an impostor) posting an
// unbounded body; grounded on the corpus's maxWebhookBodyBytes idiom.
const maxWebhookBodyBytes = 1 << 20

// botAPIUpdate is the normalized shape spec.md §6 describes for the bot-api
// platform's webhook payload: either a message or a callback_query.
type botAPIUpdate struct {
	Message *struct {
		MessageID int64  `json:"message_id"`
		From      struct{ ID int64 `json:"id"` } `json:"from"`
		Chat      struct{ ID int64 `json:"id"` } `json:"chat"`
		Text      string `json:"text"`
		Date      int64  `json:"date"`
	} `json:"message"`
	CallbackQuery *struct {
		ID   string `json:"id"`
		From struct{ ID int64 `json:"id"` } `json:"from"`
		Data string `json:"data"`
		Message struct {
			Chat struct{ ID int64 `json:"id"` } `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

// webhookBotAPI ingests one bot-api inbound update (spec.md §6/§4.5).
// Authorization decisions use from.id, never chat.id, per spec.md §4.5 step 1.
func (h *handler) webhookBotAPI(w http.ResponseWriter, r *http.Request) {
	ctx := withCorrelationID(r)

	body, verifyErr := h.readVerifiedBody(r, h.deps.Config.WebhookSharedSecret)
	if verifyErr != nil {
		writeError(w, verifyErr)
		return
	}

	var update botAPIUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "גוף הבקשה אינו תקין"))
		return
	}

	var msg webhook.InboundMessage
	switch {
	case update.Message != nil:
		msg = webhook.InboundMessage{
			PlatformMessageID: "bot-api:" + strconv.FormatInt(update.Message.MessageID, 10) + ":" + strconv.FormatInt(update.Message.From.ID, 10),
			Platform:          user.PlatformBotAPI,
			ChatID:            update.Message.From.ID,
			Text:              update.Message.Text,
		}
	case update.CallbackQuery != nil:
		msg = webhook.InboundMessage{
			PlatformMessageID: "bot-api:cb:" + update.CallbackQuery.ID,
			Platform:          user.PlatformBotAPI,
			ChatID:            update.CallbackQuery.From.ID,
			Callback:          update.CallbackQuery.Data,
		}
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": h.processInbound(ctx, msg)})
}

// webChatPayload is spec.md §6's web-chat gateway webhook body.
type webChatPayload struct {
	Messages []struct {
		SenderID  string `json:"sender_id"`
		MessageID string `json:"message_id"`
		Text      string `json:"text"`
		Timestamp int64  `json:"timestamp"`
	} `json:"messages"`
}

// webhookWebChat ingests one web-chat gateway batch (spec.md §6/§4.5).
func (h *handler) webhookWebChat(w http.ResponseWriter, r *http.Request) {
	ctx := withCorrelationID(r)

	body, verifyErr := h.readVerifiedBody(r, h.deps.Config.WebhookSharedSecret)
	if verifyErr != nil {
		writeError(w, verifyErr)
		return
	}

	var payload webChatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "גוף הבקשה אינו תקין"))
		return
	}

	statuses := make([]string, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		chatID, err := strconv.ParseInt(m.SenderID, 10, 64)
		if err != nil {
			// Non-numeric internal ids are accepted per spec.md §6 ("sender_id
			// may be a canonical contact id or an ecosystem-internal
			// identifier"); hash them into a stable int64 instead of
			// rejecting the whole batch over one malformed entry.
			chatID = hashToInt64(m.SenderID)
		}
		msg := webhook.InboundMessage{
			PlatformMessageID: "web-chat:" + m.MessageID,
			Platform:          user.PlatformWebChat,
			ChatID:            chatID,
			Text:              m.Text,
		}
		statuses = append(statuses, h.processInbound(ctx, msg))
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "results": statuses})
}

// processInbound runs msg through the webhook service and, on success,
// delivers the reply synchronously through the platform sender rather than
// the outbox — the conversation's own turn-by-turn reply is not a
// business-event notification, it is the direct response to this inbound
// message, so it is sent in-band instead of waiting on the 10s drain tick.
// It returns a short status string rather than writing the HTTP response
// itself, since the web-chat gateway path folds several of these into one
// batch response.
func (h *handler) processInbound(ctx context.Context, msg webhook.InboundMessage) string {
	reply, err := h.deps.Webhooks.Handle(ctx, msg)
	if err != nil {
		if err == webhook.ErrDuplicate {
			return "duplicate"
		}
		h.deps.Log.Error(ctx, "webhook handling failed", err, map[string]any{"platform": string(msg.Platform)})
		return "error"
	}

	if reply.Text != "" || reply.Keyboard != nil {
		if sender, ok := h.deps.Senders[msg.Platform]; ok {
			content := outbox.Content{Text: reply.Text, Keyboard: reply.Keyboard}
			if sendErr := sender.Send(ctx, strconv.FormatInt(msg.ChatID, 10), content); sendErr != nil {
				h.deps.Log.Error(ctx, "synchronous reply delivery failed", sendErr, map[string]any{"platform": string(msg.Platform)})
			}
		}
	}
	return "ok"
}

// readVerifiedBody reads the request body (bounded) and enforces spec.md
// §4.5's security contract: the core refuses to process a message without a
// verified signature, but does not itself decrypt the platform-specific
// webhook signature — that happens at the (out-of-scope) adapter boundary.
// The adapter instead signs its forwarded request to this core with an
// HMAC-SHA256 over the raw body, keyed on secret, in the X-Signature header;
// this is the "pre-verified source signature header" spec.md refers to.
func (h *handler) readVerifiedBody(r *http.Request, secret string) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "שגיאה בקריאת הבקשה", err)
	}
	if len(body) > maxWebhookBodyBytes {
		return nil, apperr.New(apperr.CodeValidation, "גוף הבקשה גדול מדי")
	}

	sig := r.Header.Get("X-Signature")
	if sig == "" || secret == "" || !webhook.VerifySignature([]byte(secret), body, sig) {
		return nil, apperr.New(apperr.CodeMissingAdminKey, "חתימת ה-webhook חסרה או שגויה")
	}
	return body, nil
}

// hashToInt64 folds an arbitrary internal identifier string into an int64
// chat id, for web-chat senders whose sender_id is not itself numeric.
func hashToInt64(s string) int64 {
	var h int64 = 1469598103934665603 // 64-bit FNV offset basis with its last digit dropped, to fit int64
	for i := 0; i < len(s); i++ {
		h ^= int64(s[i])
		h *= 1099511628211 // FNV prime
	}
	if h < 0 {
		h = -h
	}
	return h
}
