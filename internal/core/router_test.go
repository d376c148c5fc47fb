package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lingobot/internal/cache"
	"lingobot/internal/dedup"
	"lingobot/internal/pipeline"
	"lingobot/internal/provider"
	"lingobot/internal/ratelimit"
	"lingobot/internal/storage"
	"lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

type memStore struct {
	mu       sync.Mutex
	settings map[int64]storage.ChatSettings
	getErr   error
	putErr   error
}

func newMemStore() *memStore {
	return &memStore{settings: map[int64]storage.ChatSettings{}}
}

func (m *memStore) GetSettings(ctx context.Context, chatID int64) (storage.ChatSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return storage.ChatSettings{}, m.getErr
	}
	if s, ok := m.settings[chatID]; ok {
		return s, nil
	}
	return storage.ChatSettings{ChatID: chatID}, nil
}

func (m *memStore) PutSettings(ctx context.Context, s storage.ChatSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.settings[s.ChatID] = s
	return nil
}

func (m *memStore) AppendError(ctx context.Context, e storage.ErrorEntry) error { return nil }
func (m *memStore) Close() error                                                { return nil }

type captureSender struct {
	mu   sync.Mutex
	sent []string
	to   []transport.ChatTarget
	err  error
	nref int
}

func (c *captureSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return transport.MessageRef{}, c.err
	}
	c.sent = append(c.sent, text)
	c.to = append(c.to, to)
	c.nref++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: c.nref}, nil
}

func (c *captureSender) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type stubTranslator struct {
	mu    sync.Mutex
	calls int
	res   provider.Result
	err   error
}

func (s *stubTranslator) Translate(ctx context.Context, text, targetLang string) (provider.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return provider.Result{}, s.err
	}
	return s.res, nil
}

type recordReporter struct {
	mu      sync.Mutex
	reports []string
}

func (r *recordReporter) Report(ctx context.Context, chatID int64, message string, err error, notifyAdmin bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, message)
}

func newTestRouter(store storage.Store, sender transport.Sender, tr pipeline.Translator, rep pipeline.Reporter) *Router {
	resolver := pipeline.NewResolver(
		dedup.New(5*time.Minute),
		ratelimit.New(),
		cache.New(5*time.Minute),
		tr, rep, nil, logx.Nop())
	return NewRouter(logx.Nop(), store, sender, resolver, rep, Defaults{TargetLang: "en", RateLimit: 5})
}

func msgUpdate(m transport.Message) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &m}
}

func reactUpdate(re transport.Reaction) transport.Update {
	return transport.Update{Kind: transport.UpdateReaction, Reaction: &re}
}

func TestTranslateInlineText(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "bonjour", DetectedLang: "en"}}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 1, ChatID: 100, FromID: 7, Text: "/translate fr hello there",
	}))

	if got := sender.last(); got != "(en) bonjour" {
		t.Fatalf("sent %q, want %q", got, "(en) bonjour")
	}
	if tr.calls != 1 {
		t.Fatalf("translator called %d times, want 1", tr.calls)
	}
}

func TestTranslateReplyForm(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "hola"}}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 2, ChatID: 100, FromID: 7, Text: "/tr es",
		ReplyToID: 1, ReplyToText: "hello",
	}))

	if got := sender.last(); got != "hola" {
		t.Fatalf("sent %q, want %q", got, "hola")
	}
}

func TestTranslateWithoutTextExplains(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 3, ChatID: 100, FromID: 7, Text: "/translate fr",
	}))

	if tr.calls != 0 {
		t.Fatalf("translator called %d times, want 0", tr.calls)
	}
	if !strings.Contains(sender.last(), "/translate <lang>") {
		t.Fatalf("expected usage reply, got %q", sender.last())
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	cmd, args := splitCommand("/translate@lingobot fr hello")
	if cmd != "/translate" {
		t.Fatalf("cmd = %q, want /translate", cmd)
	}
	if len(args) != 2 || args[0] != "fr" {
		t.Fatalf("args = %v", args)
	}
}

func TestRejectionReplyIsPlainLanguage(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{err: provider.ErrUnsupportedLanguage}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 4, ChatID: 100, FromID: 7, Text: "/translate xx hello",
	}))

	if got := sender.last(); got != pipeline.ReasonUnsupportedLanguage.UserMessage() {
		t.Fatalf("sent %q", got)
	}
}

func TestDuplicateTriggerSendsNothing(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "ok"}}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	m := transport.Message{ID: 5, ChatID: 100, FromID: 7, Text: "/translate fr hello"}
	r.Handle(context.Background(), msgUpdate(m))
	r.Handle(context.Background(), msgUpdate(m))

	if sender.count() != 1 {
		t.Fatalf("sent %d messages, want 1 (duplicate suppressed)", sender.count())
	}
}

func TestDeliveryFailureReported(t *testing.T) {
	sender := &captureSender{err: errors.New("blocked by user")}
	tr := &stubTranslator{res: provider.Result{Text: "ok"}}
	rep := &recordReporter{}
	r := newTestRouter(newMemStore(), sender, tr, rep)

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 6, ChatID: 100, FromID: 7, Text: "/translate fr hello",
	}))

	rep.mu.Lock()
	defer rep.mu.Unlock()
	if len(rep.reports) != 1 || rep.reports[0] != "result delivery failed" {
		t.Fatalf("reports = %v", rep.reports)
	}
}

func TestSetLangPersists(t *testing.T) {
	store := newMemStore()
	sender := &captureSender{}
	r := newTestRouter(store, sender, &stubTranslator{}, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 7, ChatID: 100, FromID: 7, Text: "/setlang DE",
	}))

	s, _ := store.GetSettings(context.Background(), 100)
	if s.TargetLang != "de" {
		t.Fatalf("TargetLang = %q, want de (lowercased)", s.TargetLang)
	}
	if !strings.Contains(sender.last(), "de") {
		t.Fatalf("confirmation = %q", sender.last())
	}
}

func TestSetLimitValidatesRange(t *testing.T) {
	store := newMemStore()
	sender := &captureSender{}
	r := newTestRouter(store, sender, &stubTranslator{}, &recordReporter{})

	for _, bad := range []string{"/setlimit 0", "/setlimit 61", "/setlimit abc"} {
		r.Handle(context.Background(), msgUpdate(transport.Message{
			ID: 8, ChatID: 100, FromID: 7, Text: bad,
		}))
		s, _ := store.GetSettings(context.Background(), 100)
		if s.RateLimit != 0 {
			t.Fatalf("%q stored limit %d, want rejected", bad, s.RateLimit)
		}
	}

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 9, ChatID: 100, FromID: 7, Text: "/setlimit 10",
	}))
	s, _ := store.GetSettings(context.Background(), 100)
	if s.RateLimit != 10 {
		t.Fatalf("stored limit %d, want 10", s.RateLimit)
	}
}

func TestSetErrorsDefaultsToCurrentChat(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store, &captureSender{}, &stubTranslator{}, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 10, ChatID: 100, FromID: 7, Text: "/seterrors",
	}))
	s, _ := store.GetSettings(context.Background(), 100)
	if s.ErrorChatID != 100 {
		t.Fatalf("ErrorChatID = %d, want 100", s.ErrorChatID)
	}

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 11, ChatID: 100, FromID: 7, Text: "/seterrors 0",
	}))
	s, _ = store.GetSettings(context.Background(), 100)
	if s.ErrorChatID != 0 {
		t.Fatalf("ErrorChatID = %d, want 0 (disabled)", s.ErrorChatID)
	}
}

func TestWatchUnwatchToggles(t *testing.T) {
	store := newMemStore()
	r := newTestRouter(store, &captureSender{}, &stubTranslator{}, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 12, ChatID: 100, FromID: 7, Text: "/watch",
	}))
	s, _ := store.GetSettings(context.Background(), 100)
	if !s.WatchesChannel(100) {
		t.Fatal("expected chat 100 watched after /watch")
	}

	// A second /watch must not duplicate the entry.
	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 13, ChatID: 100, FromID: 7, Text: "/watch",
	}))
	s, _ = store.GetSettings(context.Background(), 100)
	if len(s.Watched) != 1 {
		t.Fatalf("Watched = %v, want single entry", s.Watched)
	}

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 14, ChatID: 100, FromID: 7, Text: "/unwatch",
	}))
	s, _ = store.GetSettings(context.Background(), 100)
	if s.WatchesChannel(100) {
		t.Fatal("expected chat 100 unwatched after /unwatch")
	}
}

// The watched list loaded from the store can share its backing array
// with copies held by concurrent readers; toggling must never write
// through it.
func TestWatchDoesNotMutateLoadedSlice(t *testing.T) {
	store := newMemStore()
	orig := []int64{100, 7}
	store.settings[100] = storage.ChatSettings{ChatID: 100, Watched: orig}
	r := newTestRouter(store, &captureSender{}, &stubTranslator{}, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 15, ChatID: 100, FromID: 7, Text: "/unwatch",
	}))

	if orig[0] != 100 || orig[1] != 7 {
		t.Fatalf("loaded slice was mutated in place: %v", orig)
	}
	s, _ := store.GetSettings(context.Background(), 100)
	if s.WatchesChannel(100) || !s.WatchesChannel(7) {
		t.Fatalf("stored list wrong after /unwatch: %v", s.Watched)
	}
}

func TestReactionTranslatesRememberedText(t *testing.T) {
	store := newMemStore()
	store.settings[100] = storage.ChatSettings{
		ChatID: 100, TargetLang: "fr", Watched: []int64{100},
	}
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "salut", DetectedLang: "en"}}
	r := newTestRouter(store, sender, tr, &recordReporter{})

	// The message arrives first; the reaction update carries no text.
	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 20, ChatID: 100, FromID: 7, Text: "hi",
	}))
	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 20, ChatID: 100, FromID: 8, Emoji: "🌐",
	}))

	if got := sender.last(); got != "(en) salut" {
		t.Fatalf("sent %q, want %q", got, "(en) salut")
	}
}

func TestReactionIgnoredWhenNotWatched(t *testing.T) {
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "x"}}
	r := newTestRouter(newMemStore(), sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 21, ChatID: 100, FromID: 7, Text: "hi",
	}))
	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 21, ChatID: 100, FromID: 8, Emoji: "🌐",
	}))

	if sender.count() != 0 {
		t.Fatalf("sent %d messages, want 0", sender.count())
	}
}

func TestReactionRequiresConfiguredEmoji(t *testing.T) {
	store := newMemStore()
	store.settings[100] = storage.ChatSettings{
		ChatID: 100, TriggerEmoji: "🔤", Watched: []int64{100},
	}
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "x"}}
	r := newTestRouter(store, sender, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 22, ChatID: 100, FromID: 7, Text: "hi",
	}))
	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 22, ChatID: 100, FromID: 8, Emoji: "🌐",
	}))
	if sender.count() != 0 {
		t.Fatalf("wrong emoji triggered a send")
	}

	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 22, ChatID: 100, FromID: 8, Emoji: "🔤",
	}))
	if sender.count() != 1 {
		t.Fatalf("configured emoji did not trigger, sent %d", sender.count())
	}
}

func TestReactionOnUnknownMessageIgnored(t *testing.T) {
	store := newMemStore()
	store.settings[100] = storage.ChatSettings{ChatID: 100, Watched: []int64{100}}
	sender := &captureSender{}
	tr := &stubTranslator{res: provider.Result{Text: "x"}}
	r := newTestRouter(store, sender, tr, &recordReporter{})

	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 999, ChatID: 100, FromID: 8, Emoji: "🌐",
	}))

	if sender.count() != 0 {
		t.Fatalf("sent %d messages for a message with no known text", sender.count())
	}
}

func TestChatTargetLangOverridesDefault(t *testing.T) {
	store := newMemStore()
	store.settings[100] = storage.ChatSettings{
		ChatID: 100, TargetLang: "uk", Watched: []int64{100},
	}
	gotTarget := ""
	tr := &trFunc{fn: func(ctx context.Context, text, target string) (provider.Result, error) {
		gotTarget = target
		return provider.Result{Text: "ok"}, nil
	}}
	r := newTestRouter(store, &captureSender{}, tr, &recordReporter{})

	r.Handle(context.Background(), msgUpdate(transport.Message{
		ID: 30, ChatID: 100, FromID: 7, Text: "hi",
	}))
	r.Handle(context.Background(), reactUpdate(transport.Reaction{
		MessageID: 30, ChatID: 100, FromID: 8, Emoji: "🌐",
	}))

	if gotTarget != "uk" {
		t.Fatalf("target = %q, want uk from chat settings", gotTarget)
	}
}

type trFunc struct {
	fn func(ctx context.Context, text, target string) (provider.Result, error)
}

func (t *trFunc) Translate(ctx context.Context, text, target string) (provider.Result, error) {
	return t.fn(ctx, text, target)
}
