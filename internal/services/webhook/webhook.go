// Package webhook implements the inbound intake pipeline of spec.md §4.5:
// idempotent processing of platform webhooks, user upsert-on-first-contact,
// and hand-off into the Conversation Engine. HMAC signature verification
// uses constant-time comparison, grounded on the corpus's
// josephblackelite-nhbchain webhook-verification idiom (hmac.Equal over a
// freshly computed digest rather than a direct string compare).
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/services/conversation"
	"github.com/dispatchcore/platform/internal/services/conversation/roles"
	"github.com/dispatchcore/platform/internal/storage"
	"github.com/dispatchcore/platform/internal/validation"
)

// ErrDuplicate is returned when an inbound message has already been
// processed or is currently being processed by another worker.
var ErrDuplicate = errors.New("webhook: duplicate or in-flight message")

// InboundMessage is the platform-agnostic shape every adapter normalizes
// its webhook payload into before handing it to Service.Handle.
type InboundMessage struct {
	PlatformMessageID string
	Platform          user.Platform
	ChatID            int64
	Phone             string // empty for bot-API users with no shared phone
	Name              string
	Text              string
	Callback          string
	Media             *outbox.Media
}

// Service implements the webhook intake pipeline.
type Service struct {
	webhooks storage.WebhookStore
	users    storage.UserStore
	stations storage.StationStore
	engine   *conversation.Engine
	deps     *roles.Deps
	log      *logging.Logger
}

// New builds a webhook Service.
func New(webhooks storage.WebhookStore, users storage.UserStore, stations storage.StationStore, engine *conversation.Engine, deps *roles.Deps, log *logging.Logger) *Service {
	return &Service{webhooks: webhooks, users: users, stations: stations, engine: engine, deps: deps, log: log}
}

// VerifySignature checks an HMAC-SHA256 signature (hex-encoded) over
// payload against secret using constant-time comparison, refusing to leak
// timing information about how much of the signature matched.
func VerifySignature(secret, payload []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)
	got, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Handle runs one inbound message through idempotency, user upsert, and the
// conversation engine, returning the reply to send back.
func (s *Service) Handle(ctx context.Context, msg InboundMessage) (conversation.Reply, error) {
	ok, err := s.webhooks.TryBeginProcessing(ctx, msg.PlatformMessageID)
	if err != nil {
		return conversation.Reply{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בבדיקת כפילות", err)
	}
	if !ok {
		return conversation.Reply{}, ErrDuplicate
	}

	u, err := s.upsertUser(ctx, msg)
	if err != nil {
		_ = s.webhooks.MarkWebhookFailed(ctx, msg.PlatformMessageID)
		return conversation.Reply{}, err
	}

	reply, err := s.route(ctx, u, msg)
	if err != nil {
		_ = s.webhooks.MarkWebhookFailed(ctx, msg.PlatformMessageID)
		return conversation.Reply{}, err
	}
	if err := s.webhooks.MarkWebhookProcessed(ctx, msg.PlatformMessageID); err != nil {
		s.log.LogSecurityEvent(ctx, "webhook_mark_processed_failed", map[string]any{"platform_message_id": msg.PlatformMessageID})
	}
	return reply, nil
}

func (s *Service) upsertUser(ctx context.Context, msg InboundMessage) (user.User, error) {
	existing, err := s.users.GetUserByChatID(ctx, msg.Platform, msg.ChatID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperr.Wrap(apperr.CodeInternal, "שגיאה בטעינת המשתמש", err)
	}

	phone := msg.Phone
	if phone == "" || !validation.PhoneValidate(phone) {
		placeholder, perr := validation.PhonePlaceholder(formatChatID(msg.ChatID))
		if perr != nil {
			return user.User{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת מזהה זמני", perr)
		}
		phone = placeholder
	} else if normalized, nerr := validation.PhoneNormalize(phone); nerr == nil {
		phone = normalized
	}

	created, err := s.users.CreateUser(ctx, user.User{
		Phone:    phone,
		ChatID:   msg.ChatID,
		Name:     validation.Sanitize(msg.Name),
		Role:     user.RoleSender,
		Platform: msg.Platform,
		IsActive: true,
	})
	if err != nil {
		return user.User{}, apperr.Wrap(apperr.CodeInternal, "שגיאה ביצירת המשתמש", err)
	}
	return created, nil
}

func formatChatID(id int64) string {
	if id == 0 {
		return ""
	}
	return itoa(id)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// route loads the user's session, resolves a station-owner/dispatcher
// user's station into context on menu entry, runs "/start" as a hard reset,
// and otherwise dispatches through the role handlers, validating the
// resulting transition against the conversation graph.
func (s *Service) route(ctx context.Context, u user.User, msg InboundMessage) (conversation.Reply, error) {
	sess, err := s.engine.GetOrCreateSession(ctx, u.ID, msg.Platform)
	if err != nil {
		return conversation.Reply{}, err
	}

	resolved, err := s.deps.Callbacks.Resolve(ctx, msg.Callback)
	if err != nil {
		return conversation.Reply{Text: "הכפתור פג תוקף, אנא נסה שוב."}, nil
	}

	in := conversation.Input{Text: validation.Sanitize(msg.Text), Callback: resolved, Media: msg.Media}

	if validation.Sanitize(msg.Text) == "/start" {
		entry := conversation.RouteToRoleMenu(ctx, s.log, u.Role)
		newSess, err := s.engine.HandleStart(ctx, sess, u.Role, entry.State)
		if err != nil {
			return conversation.Reply{}, err
		}
		ctxPatch, perr := s.stationContextPatch(ctx, u)
		if perr == nil && len(ctxPatch) > 0 {
			_, _ = s.engine.PatchContext(ctx, newSess, ctxPatch)
		}
		return conversation.Reply{Text: entry.Text}, nil
	}

	if sess.CurrentState == conversation.Initial {
		entry := conversation.RouteToRoleMenu(ctx, s.log, u.Role)
		ctxPatch, _ := s.stationContextPatch(ctx, u)
		sess, err = s.engine.TransitionTo(ctx, sess, u.Role, entry.State, ctxPatch)
		if err != nil {
			return conversation.Reply{}, err
		}
	}

	reply, next, patch, err := roles.Dispatch(ctx, s.deps, sess, u, in)
	if err != nil {
		return conversation.Reply{}, err
	}
	if next != sess.CurrentState {
		if _, terr := s.engine.TransitionTo(ctx, sess, u.Role, next, patch); terr != nil {
			return conversation.Reply{}, terr
		}
	} else if len(patch) > 0 {
		if _, terr := s.engine.PatchContext(ctx, sess, patch); terr != nil {
			return conversation.Reply{}, terr
		}
	}
	return reply, nil
}

// stationContextPatch resolves a station-owner/dispatcher's station once on
// menu entry, so DISPATCHER.*/STATION.* handlers can read "station_id" from
// context without a fresh lookup on every turn. A user with no station
// (should not normally happen past onboarding) gets no patch and the
// handlers that require it fail closed with CodeValidation.
func (s *Service) stationContextPatch(ctx context.Context, u user.User) (conversation.Context, error) {
	if u.Role != user.RoleStationOwner && u.Role != user.RoleCourier {
		return nil, nil
	}
	stationID, ok, err := s.stations.StationForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return conversation.Context{"station_id": stationID}, nil
}
