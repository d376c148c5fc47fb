package provider

import (
	"context"
	"errors"
	"testing"

	"lingobot/internal/eventbus"
	logx "lingobot/pkg/logx"
)

type fakeProvider struct {
	name  string
	res   Result
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Translate(ctx context.Context, text, targetLang string) (Result, error) {
	f.calls++
	if f.err != nil {
		return Result{}, f.err
	}
	return f.res, nil
}

func TestChainUnsupportedLanguageShortCircuits(t *testing.T) {
	primary := &fakeProvider{name: "primary", res: Result{Text: "x"}}
	c := NewChain(logx.Nop(), nil, primary)

	_, err := c.Translate(context.Background(), "hello", "xx")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("err = %v, want ErrUnsupportedLanguage", err)
	}
	if primary.calls != 0 {
		t.Fatalf("no provider may be contacted for an unsupported language")
	}
}

func TestChainFirstSuccessWins(t *testing.T) {
	primary := &fakeProvider{name: "primary", res: Result{Text: "bonjour", DetectedLang: "en"}}
	secondary := &fakeProvider{name: "secondary", res: Result{Text: "unused"}}
	c := NewChain(logx.Nop(), nil, primary, secondary)

	res, err := c.Translate(context.Background(), "hello", "fr")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "bonjour" || res.DetectedLang != "en" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not be contacted after primary success")
	}
}

func TestChainFallsBackOnce(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("status 500")}
	secondary := &fakeProvider{name: "secondary", res: Result{Text: "hola", DetectedLang: "en"}}

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	c := NewChain(logx.Nop(), bus, primary, secondary)
	res, err := c.Translate(context.Background(), "hello", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "hola" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("calls primary=%d secondary=%d, want 1/1", primary.calls, secondary.calls)
	}

	// Exactly one failure record, for the primary.
	select {
	case e := <-events:
		if e.Type != eventbus.TypeProviderFailed {
			t.Fatalf("event type = %q", e.Type)
		}
		fe := e.Data.(FailureEvent)
		if fe.Provider != "primary" {
			t.Fatalf("failure recorded for %q, want primary", fe.Provider)
		}
	default:
		t.Fatalf("expected a provider.failed event")
	}
	select {
	case e := <-events:
		t.Fatalf("unexpected extra event %q", e.Type)
	default:
	}
}

func TestChainAllFailedCarriesLastDetail(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("timeout")}
	secondaryErr := errors.New("quota exceeded")
	secondary := &fakeProvider{name: "secondary", err: secondaryErr}
	c := NewChain(logx.Nop(), nil, primary, secondary)

	_, err := c.Translate(context.Background(), "hello", "fr")
	var all *AllFailedError
	if !errors.As(err, &all) {
		t.Fatalf("err = %T, want *AllFailedError", err)
	}
	if len(all.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(all.Attempts))
	}
	if !errors.Is(all.Last(), secondaryErr) {
		t.Fatalf("Last() = %v, want the secondary's failure", all.Last())
	}
	if !errors.Is(err, secondaryErr) {
		t.Fatalf("chain error should unwrap to the last attempt")
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Fatalf("no provider may be retried: primary=%d secondary=%d", primary.calls, secondary.calls)
	}
}
