package postgres

import "github.com/dispatchcore/platform/internal/storage"

var (
	_ storage.UserStore         = (*Store)(nil)
	_ storage.DeliveryStore     = (*Store)(nil)
	_ storage.WalletStore       = (*Store)(nil)
	_ storage.StationStore      = (*Store)(nil)
	_ storage.ConversationStore = (*Store)(nil)
	_ storage.OutboxStore       = (*Store)(nil)
	_ storage.WebhookStore      = (*Store)(nil)
	_ storage.AuditStore        = (*Store)(nil)
	_ storage.AuthStore         = (*Store)(nil)
)
