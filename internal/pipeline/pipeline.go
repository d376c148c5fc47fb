// Package pipeline composes the trigger-processing lifecycle: dedup,
// rate limiting, cache lookup, provider fallback, error reporting.
package pipeline

import (
	"context"
	"errors"

	"lingobot/internal/cache"
	"lingobot/internal/dedup"
	"lingobot/internal/eventbus"
	"lingobot/internal/provider"
	"lingobot/internal/ratelimit"
	logx "lingobot/pkg/logx"
)

// Trigger is one inbound translation request, already resolved to a
// target language and rate limit by the router (per-chat settings).
type Trigger struct {
	ID         string // stable per source message, e.g. "chat:msgid"
	ChatID     int64
	UserID     int64
	Text       string
	TargetLang string
	Limit      int // accepted requests per user per minute
}

type Status int

const (
	StatusDelivered Status = iota
	StatusSuppressed
	StatusRejected
)

type Reason int

const (
	ReasonNone Reason = iota
	ReasonRateLimited
	ReasonUnsupportedLanguage
	ReasonServiceOutage
)

// UserMessage is the plain-language rejection text shown to the
// requesting user. Internal detail never leaks here.
func (r Reason) UserMessage() string {
	switch r {
	case ReasonRateLimited:
		return "You're translating too fast. Try again in a minute."
	case ReasonUnsupportedLanguage:
		return "That target language isn't supported."
	case ReasonServiceOutage:
		return "Translation services are unavailable right now. Try again later."
	default:
		return ""
	}
}

type Result struct {
	Status       Status
	Reason       Reason
	Text         string
	DetectedLang string
	FromCache    bool
}

// Translator is the provider chain as the pipeline sees it.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (provider.Result, error)
}

// Reporter is the error notifier as the pipeline sees it.
type Reporter interface {
	Report(ctx context.Context, chatID int64, message string, err error, notifyAdmin bool)
}

// Resolver holds direct handles to every stage; no runtime lookup.
// Each stage guards its own state, and no lock is held across the
// provider call.
type Resolver struct {
	dedup    *dedup.Registry
	limiter  *ratelimit.Limiter
	cache    *cache.Cache
	chain    Translator
	reporter Reporter
	bus      eventbus.Bus
	log      logx.Logger
}

func NewResolver(d *dedup.Registry, l *ratelimit.Limiter, c *cache.Cache, chain Translator, rep Reporter, bus eventbus.Bus, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{
		dedup:    d,
		limiter:  l,
		cache:    c,
		chain:    chain,
		reporter: rep,
		bus:      bus,
		log:      log,
	}
}

// Process runs one trigger through the gates in order. Cheap in-memory
// checks come first; the provider chain is only reached on a cache miss
// by an admitted, non-duplicate trigger.
func (r *Resolver) Process(ctx context.Context, t Trigger) Result {
	if !r.dedup.TryAccept(t.ID, t.UserID) {
		r.publish(eventbus.TypeTranslateSuppressed, t)
		return Result{Status: StatusSuppressed}
	}

	if !r.limiter.Allow(t.UserID, t.Limit) {
		r.publish(eventbus.TypeTranslateRejected, t)
		// Quota rejections are expected behavior, not errors.
		r.log.Debug("trigger rate limited", logx.Int64("user", t.UserID), logx.Int64("chat", t.ChatID))
		return Result{Status: StatusRejected, Reason: ReasonRateLimited}
	}

	if res, ok := r.cache.Get(t.Text, t.TargetLang); ok {
		r.publish(eventbus.TypeTranslateCached, t)
		return Result{Status: StatusDelivered, Text: res.Text, DetectedLang: res.DetectedLang, FromCache: true}
	}

	res, err := r.chain.Translate(ctx, t.Text, t.TargetLang)
	if err != nil {
		return r.failed(ctx, t, err)
	}

	r.cache.Set(t.Text, t.TargetLang, cache.Result{Text: res.Text, DetectedLang: res.DetectedLang})
	r.publish(eventbus.TypeTranslateDone, t)
	return Result{Status: StatusDelivered, Text: res.Text, DetectedLang: res.DetectedLang}
}

func (r *Resolver) failed(ctx context.Context, t Trigger, err error) Result {
	r.publish(eventbus.TypeTranslateRejected, t)

	if errors.Is(err, provider.ErrUnsupportedLanguage) {
		// User error, surfaced directly and not reported.
		return Result{Status: StatusRejected, Reason: ReasonUnsupportedLanguage}
	}

	var all *provider.AllFailedError
	if errors.As(err, &all) && r.reporter != nil {
		r.reporter.Report(ctx, t.ChatID, "all translation providers failed", all, true)
	} else if r.reporter != nil {
		r.reporter.Report(ctx, t.ChatID, "translation failed", err, true)
	}
	return Result{Status: StatusRejected, Reason: ReasonServiceOutage}
}

func (r *Resolver) publish(typ string, t Trigger) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: TriggerEvent{
		TriggerID: t.ID,
		ChatID:    t.ChatID,
		UserID:    t.UserID,
		Target:    t.TargetLang,
	}})
}

// TriggerEvent is the bus payload for pipeline lifecycle events.
type TriggerEvent struct {
	TriggerID string `json:"trigger_id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	Target    string `json:"target"`
}
