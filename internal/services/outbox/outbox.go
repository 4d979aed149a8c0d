// Package outbox implements the transactional-outbox drain loop (spec.md
// §4.7): a small pool of goroutines woken by a time.Ticker, each leasing a
// bounded batch of pending rows with SELECT ... FOR UPDATE SKIP LOCKED,
// dispatching them through the platform adapter under the service's circuit
// breaker, and rescheduling or terminally failing them on error.
//
// Grounded on the teacher's applications/jam/store_pg.go NextPending lease
// pattern and other_examples' bat-go wallet-datastore.go
// SendVerifiedWalletOutbox (transactional dequeue, external call, commit,
// pluggable retry).
package outbox

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/dispatchcore/platform/internal/apperr"
	"github.com/dispatchcore/platform/internal/domain/outbox"
	"github.com/dispatchcore/platform/internal/domain/user"
	"github.com/dispatchcore/platform/internal/platform/logging"
	"github.com/dispatchcore/platform/internal/platform/resilience"
	"github.com/dispatchcore/platform/internal/storage"
)

// Sender delivers one message's content to one recipient on a platform. Both
// internal/adapters/botapi.Client and internal/adapters/webchat.Client
// satisfy this.
type Sender interface {
	Send(ctx context.Context, recipientID string, content outbox.Content) error
}

// Config tunes the drain loop. Zero values fall back to spec.md §3 defaults.
type Config struct {
	TickInterval    time.Duration
	BatchSize       int
	Workers         int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 60 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = time.Hour
	}
	return c
}

// Worker drains the outbox table.
type Worker struct {
	outbox   storage.OutboxStore
	users    storage.UserStore
	stations storage.StationStore
	breakers *resilience.Registry
	senders  map[user.Platform]Sender
	log      *logging.Logger
	cfg      Config
}

// New builds a Worker. senders must have an entry for every user.Platform the
// deployment serves; a platform with no sender can never dispatch and every
// message destined for it terminally fails.
func New(
	outboxStore storage.OutboxStore,
	users storage.UserStore,
	stations storage.StationStore,
	breakers *resilience.Registry,
	senders map[user.Platform]Sender,
	log *logging.Logger,
	cfg Config,
) *Worker {
	return &Worker{
		outbox:   outboxStore,
		users:    users,
		stations: stations,
		breakers: breakers,
		senders:  senders,
		log:      log,
		cfg:      cfg.withDefaults(),
	}
}

// Run blocks, ticking every cfg.TickInterval and draining one batch per tick,
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce leases one batch and fans it out across cfg.Workers goroutines.
func (w *Worker) drainOnce(ctx context.Context) {
	messages, err := w.outbox.LeaseNext(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error(ctx, "outbox lease failed", err, nil)
		return
	}
	if len(messages) == 0 {
		return
	}

	jobs := make(chan outbox.Message, len(messages))
	for _, m := range messages {
		jobs <- m
	}
	close(jobs)

	var wg sync.WaitGroup
	workers := w.cfg.Workers
	if workers > len(messages) {
		workers = len(messages)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				w.process(ctx, m)
			}
		}()
	}
	wg.Wait()
}

// process resolves recipients, dispatches, and records the outcome for one
// leased message.
func (w *Worker) process(ctx context.Context, m outbox.Message) {
	recipients, err := w.resolveRecipients(ctx, m)
	if err != nil {
		w.finish(ctx, m, err)
		return
	}
	if len(recipients) == 0 {
		// Nothing eligible to notify (e.g. a broadcast with no active
		// couriers). Not an error: the message is done.
		if markErr := w.outbox.MarkSent(ctx, m.ID); markErr != nil {
			w.log.Error(ctx, "outbox mark-sent failed", markErr, map[string]any{"message_id": m.ID})
		}
		return
	}

	var lastErr error
	for _, r := range recipients {
		sender, ok := w.senders[r.platform]
		if !ok {
			lastErr = apperr.New(apperr.CodeValidation, "no sender registered for platform")
			continue
		}
		breaker := w.breakers.Get(string(r.platform))
		sendErr := breaker.Execute(ctx, func(ctx context.Context) error {
			return sender.Send(ctx, r.recipientID, m.Content)
		})
		if sendErr != nil {
			lastErr = sendErr
		}
	}
	w.finish(ctx, m, lastErr)
}

// finish applies the outcome of one dispatch attempt to the outbox row.
func (w *Worker) finish(ctx context.Context, m outbox.Message, err error) {
	if err == nil {
		if markErr := w.outbox.MarkSent(ctx, m.ID); markErr != nil {
			w.log.Error(ctx, "outbox mark-sent failed", markErr, map[string]any{"message_id": m.ID})
		}
		return
	}

	newRetryCount := m.RetryCount + 1
	if isTransient(err) && newRetryCount < m.MaxRetries {
		delay := backoff(newRetryCount, w.cfg.BaseBackoff, w.cfg.MaxBackoff)
		if markErr := w.outbox.MarkRetry(ctx, m.ID, err.Error(), time.Now().Add(delay)); markErr != nil {
			w.log.Error(ctx, "outbox mark-retry failed", markErr, map[string]any{"message_id": m.ID})
		}
		return
	}

	// Permanent failure, or a transient one that exhausted max_retries: the
	// row is left status=failed for the operator debug surface.
	if markErr := w.outbox.MarkFailed(ctx, m.ID, err.Error()); markErr != nil {
		w.log.Error(ctx, "outbox mark-failed failed", markErr, map[string]any{"message_id": m.ID})
	}
}

// isTransient reports whether err should be retried rather than terminally
// failed: apperr's 5xxx range, or the circuit breaker itself rejecting the
// call because it is open.
func isTransient(err error) bool {
	if apperr.IsTransient(err) {
		return true
	}
	return errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests)
}

// backoff computes base * 2^retryCount, capped at max. retryCount is clamped
// before shifting so the exponent can never overflow int (a retry_count this
// high would already exceed any realistic max_retries and be capped on the
// very first check anyway).
func backoff(retryCount int, base, max time.Duration) time.Duration {
	const overflowGuard = 20
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > overflowGuard {
		return max
	}
	delay := base << uint(retryCount)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}

// recipient is one resolved (platform, platform-native id) destination.
type recipient struct {
	platform    user.Platform
	recipientID string
}

// resolveRecipients turns an outbox row's recipient selector into concrete
// (platform, chat id) pairs, looking up each user's CURRENT platform/chat id
// rather than trusting whatever was captured at enqueue time (spec.md §4.7
// step 3).
func (w *Worker) resolveRecipients(ctx context.Context, m outbox.Message) ([]recipient, error) {
	if m.RecipientID != outbox.BroadcastCouriers {
		userID, err := strconv.ParseInt(m.RecipientID, 10, 64)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeValidation, "recipient id is not numeric", err)
		}
		u, err := w.users.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return nil, apperr.Wrap(apperr.CodeInternal, "resolve recipient failed", err)
		}
		return []recipient{{platform: u.Platform, recipientID: strconv.FormatInt(u.ChatID, 10)}}, nil
	}

	couriers, err := w.users.ListActiveApprovedCouriers(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list couriers for broadcast failed", err)
	}

	out := make([]recipient, 0, len(couriers))
	for _, c := range couriers {
		if m.StationID != nil {
			blocked, blErr := w.stations.IsBlacklisted(ctx, *m.StationID, c.ID)
			if blErr != nil {
				w.log.Error(ctx, "blacklist check failed during broadcast", blErr, map[string]any{"courier_id": c.ID})
				continue
			}
			if blocked {
				continue
			}
		}
		out = append(out, recipient{platform: c.Platform, recipientID: strconv.FormatInt(c.ChatID, 10)})
	}
	return out, nil
}
