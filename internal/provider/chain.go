package provider

import (
	"context"
	"time"

	"lingobot/internal/eventbus"
	logx "lingobot/pkg/logx"
)

// FailureEvent is published on the bus for every failed provider
// attempt.
type FailureEvent struct {
	Provider string    `json:"provider"`
	Target   string    `json:"target"`
	At       time.Time `json:"at"`
	Error    string    `json:"error"`
}

// Chain tries providers strictly in priority order and returns the
// first success. A single provider outage must not surface as a user
// failure, but each provider is attempted at most once per request so a
// broken request doesn't multiply metered-API cost.
type Chain struct {
	providers []Provider
	log       logx.Logger
	bus       eventbus.Bus
}

func NewChain(log logx.Logger, bus eventbus.Bus, providers ...Provider) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Chain{providers: providers, log: log, bus: bus}
}

// Translate validates the target language, then walks the chain.
// Failure modes:
//   - ErrUnsupportedLanguage: target not supported, nothing contacted.
//   - *AllFailedError: every provider failed; carries per-attempt detail.
func (c *Chain) Translate(ctx context.Context, text, targetLang string) (Result, error) {
	if !Supported(targetLang) {
		return Result{}, ErrUnsupportedLanguage
	}

	var attempts []Attempt
	for _, p := range c.providers {
		res, err := p.Translate(ctx, text, targetLang)
		if err == nil {
			return res, nil
		}

		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
		c.log.Warn("provider attempt failed",
			logx.String("provider", p.Name()),
			logx.String("target", targetLang),
			logx.Err(err),
		)
		if c.bus != nil {
			c.bus.Publish(eventbus.Event{
				Type: eventbus.TypeProviderFailed,
				Data: FailureEvent{Provider: p.Name(), Target: targetLang, At: time.Now(), Error: err.Error()},
			})
		}
	}

	return Result{}, &AllFailedError{Attempts: attempts}
}
