// Package notify reports pipeline failures. Every report lands in the
// durable error log; a per-chat cooldown additionally gates a copy to
// the chat's configured admin channel.
package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lingobot/internal/eventbus"
	"lingobot/internal/storage"
	"lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

const (
	DefaultCooldown = 900 * time.Second

	// detailLimit caps the stack/provider detail written to the log
	// sink. Full traces belong in debugging sessions, not in every row.
	detailLimit = 2000

	storeWriteTimeout = 2 * time.Second
	sendTimeout       = 10 * time.Second
)

// Service is the error notifier. Every operation is best-effort:
// Report never returns an error and never panics the caller's request.
//
// Per chat the notifier is either Idle or Cooling; cooling ends purely
// by elapsed time. At most one admin notification is attempted per chat
// per cooldown interval, no matter how many errors arrive.
type Service struct {
	log    logx.Logger
	store  storage.Store
	sender transport.Sender
	bus    eventbus.Bus

	cooldown time.Duration
	limiter  *rate.Limiter // paces outbound admin sends across all chats

	mu   sync.Mutex
	last map[int64]time.Time // chat id -> last notification attempt

	now func() time.Time
}

func New(log logx.Logger, store storage.Store, sender transport.Sender, bus eventbus.Bus, cooldown time.Duration) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Service{
		log:      log,
		store:    store,
		sender:   sender,
		bus:      bus,
		cooldown: cooldown,
		limiter:  rate.NewLimiter(rate.Limit(1), 3),
		last:     map[int64]time.Time{},
		now:      time.Now,
	}
}

// Report logs the failure durably and, when notifyAdmin is set and the
// chat is not cooling, attempts one admin notification. The cooldown
// stamp is reset on every attempt that passed the check, whether or not
// delivery succeeded.
func (s *Service) Report(ctx context.Context, chatID int64, message string, err error, notifyAdmin bool) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	stack := logx.CallersStack(1, 12)
	if stack != "" {
		if detail != "" {
			detail += "\n"
		}
		detail += stack
	}
	detail = truncate(detail, detailLimit)

	s.log.Error(message, logx.Int64("chat", chatID), logx.Err(err), logx.Stack(stack))

	if s.store != nil {
		// Detached from the trigger's context: an abandoned trigger must
		// not abort the error log append mid-way.
		wctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		if werr := s.store.AppendError(wctx, storage.ErrorEntry{
			At:      s.now(),
			ChatID:  chatID,
			Message: message,
			Detail:  detail,
		}); werr != nil {
			// The log write itself is best-effort.
			s.log.Warn("error log append failed", logx.Err(werr))
		}
		cancel()
	}

	if !notifyAdmin {
		return
	}
	s.notifyAdmin(chatID, message)
}

// notifyAdmin runs on its own contexts: delivery is decoupled from the
// trigger that produced the error.
func (s *Service) notifyAdmin(chatID int64, message string) {
	now := s.now()

	s.mu.Lock()
	if last, ok := s.last[chatID]; ok && now.Sub(last) < s.cooldown {
		s.mu.Unlock()
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyCooled, Data: chatID})
		}
		return
	}
	// Idle -> Cooling. Stamp before delivery so a concurrent report for
	// the same chat can't double-send, and keep the stamp regardless of
	// the delivery outcome.
	s.last[chatID] = now
	s.mu.Unlock()

	if s.sender == nil || s.store == nil {
		return
	}

	settings, err := s.store.GetSettings(context.Background(), chatID)
	if err != nil || settings.ErrorChatID == 0 {
		if err != nil {
			s.log.Warn("error channel lookup failed", logx.Int64("chat", chatID), logx.Err(err))
		}
		return
	}

	sctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := s.limiter.Wait(sctx); err != nil {
		return
	}
	_, serr := s.sender.SendText(sctx, transport.ChatTarget{ChatID: settings.ErrorChatID},
		"⚠️ translation error: "+message, &transport.SendOptions{DisablePreview: true})
	if serr != nil {
		// Swallowed: notification is best-effort.
		s.log.Warn("admin notification failed", logx.Int64("chat", chatID), logx.Err(serr))
		return
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySent, Data: chatID})
	}
}

// PruneCooldowns drops stamps whose cooldown has fully elapsed. Memory
// aid only; the Report path checks elapsed time itself.
func (s *Service) PruneCooldowns() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, last := range s.last {
		if now.Sub(last) >= s.cooldown {
			delete(s.last, id)
			removed++
		}
	}
	return removed
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
