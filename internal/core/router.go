package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"lingobot/internal/pipeline"
	"lingobot/internal/storage"
	"lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

const defaultTriggerEmoji = "🌐"

// recentTextLimit bounds the in-memory text lookup for reaction
// triggers. Telegram reaction updates don't carry the message body, so
// the router remembers what it has seen recently.
const recentTextLimit = 2048

// Defaults are the fallbacks used when a chat has no stored settings.
type Defaults struct {
	TargetLang string
	RateLimit  int
}

// Router turns transport updates into pipeline triggers and delivers
// the outcome back to the chat. Everything here is thin glue; the
// request lifecycle lives in the pipeline.
type Router struct {
	log      logx.Logger
	store    storage.Store
	sender   transport.Sender
	resolver *pipeline.Resolver
	reporter pipeline.Reporter
	defaults Defaults

	mu     sync.Mutex
	recent map[msgKey]string
	order  []msgKey
}

type msgKey struct {
	chatID int64
	msgID  int
}

func NewRouter(log logx.Logger, store storage.Store, sender transport.Sender, resolver *pipeline.Resolver, reporter pipeline.Reporter, defaults Defaults) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if defaults.TargetLang == "" {
		defaults.TargetLang = "en"
	}
	if defaults.RateLimit <= 0 {
		defaults.RateLimit = 5
	}
	return &Router{
		log:      log,
		store:    store,
		sender:   sender,
		resolver: resolver,
		reporter: reporter,
		defaults: defaults,
		recent:   map[msgKey]string{},
	}
}

// Handle dispatches one update. Callers run it on their own goroutine;
// triggers are independent end-to-end and carry no ordering guarantee.
func (r *Router) Handle(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case transport.UpdateReaction:
		if up.Reaction != nil {
			r.handleReaction(ctx, up.Reaction)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *transport.Message) {
	r.remember(m.ChatID, m.ID, m.Text)
	if m.ReplyToID != 0 {
		r.remember(m.ChatID, m.ReplyToID, m.ReplyToText)
	}

	if !strings.HasPrefix(m.Text, "/") {
		return
	}
	cmd, args := splitCommand(m.Text)

	switch cmd {
	case "/translate", "/tr":
		r.cmdTranslate(ctx, m, args)
	case "/setlang":
		r.cmdSetLang(ctx, m, args)
	case "/setlimit":
		r.cmdSetLimit(ctx, m, args)
	case "/seterrors":
		r.cmdSetErrors(ctx, m, args)
	case "/setemoji":
		r.cmdSetEmoji(ctx, m, args)
	case "/watch":
		r.cmdWatch(ctx, m, true)
	case "/unwatch":
		r.cmdWatch(ctx, m, false)
	}
}

// cmdTranslate handles both forms:
//
//	/translate fr          (as a reply: translate the replied-to message)
//	/translate fr <text>   (translate the inline text)
func (r *Router) cmdTranslate(ctx context.Context, m *transport.Message, args []string) {
	settings := r.settings(ctx, m.ChatID)

	target := r.targetLang(settings)
	text := ""
	triggerMsgID := m.ID

	if len(args) > 0 {
		target = strings.ToLower(args[0])
	}
	switch {
	case len(args) > 1:
		text = strings.Join(args[1:], " ")
	case m.ReplyToID != 0:
		text = m.ReplyToText
		triggerMsgID = m.ReplyToID
	}
	if strings.TrimSpace(text) == "" {
		r.reply(ctx, m, "Reply to a message with /translate <lang>, or use /translate <lang> <text>.")
		return
	}

	trig := pipeline.Trigger{
		ID:         triggerID(m.ChatID, triggerMsgID),
		ChatID:     m.ChatID,
		UserID:     m.FromID,
		Text:       text,
		TargetLang: target,
		Limit:      r.rateLimit(settings),
	}
	r.deliver(ctx, m.ChatID, m.ID, r.resolver.Process(ctx, trig))
}

func (r *Router) handleReaction(ctx context.Context, re *transport.Reaction) {
	settings := r.settings(ctx, re.ChatID)
	if !settings.WatchesChannel(re.ChatID) {
		return
	}
	emoji := settings.TriggerEmoji
	if emoji == "" {
		emoji = defaultTriggerEmoji
	}
	if re.Emoji != emoji {
		return
	}

	text := re.MessageText
	if text == "" {
		text = r.recall(re.ChatID, re.MessageID)
	}
	if strings.TrimSpace(text) == "" {
		// Message predates the bot or fell out of the lookup window.
		return
	}

	trig := pipeline.Trigger{
		ID:         triggerID(re.ChatID, re.MessageID),
		ChatID:     re.ChatID,
		UserID:     re.FromID,
		Text:       text,
		TargetLang: r.targetLang(settings),
		Limit:      r.rateLimit(settings),
	}
	r.deliver(ctx, re.ChatID, re.MessageID, r.resolver.Process(ctx, trig))
}

func (r *Router) deliver(ctx context.Context, chatID int64, replyTo int, res pipeline.Result) {
	switch res.Status {
	case pipeline.StatusSuppressed:
		return
	case pipeline.StatusRejected:
		if msg := res.Reason.UserMessage(); msg != "" {
			r.send(ctx, chatID, replyTo, msg)
		}
		return
	}

	text := res.Text
	if res.DetectedLang != "" {
		text = fmt.Sprintf("(%s) %s", res.DetectedLang, res.Text)
	}
	r.send(ctx, chatID, replyTo, text)
}

func (r *Router) send(ctx context.Context, chatID int64, replyTo int, text string) {
	_, err := r.sender.SendText(ctx, transport.ChatTarget{ChatID: chatID, ReplyTo: replyTo}, text,
		&transport.SendOptions{DisablePreview: true})
	if err != nil && r.reporter != nil {
		// Delivery failures are logged, never retried.
		r.reporter.Report(ctx, chatID, "result delivery failed", err, false)
	}
}

func (r *Router) reply(ctx context.Context, m *transport.Message, text string) {
	r.send(ctx, m.ChatID, m.ID, text)
}

// ---- settings commands ----

func (r *Router) cmdSetLang(ctx context.Context, m *transport.Message, args []string) {
	if len(args) != 1 {
		r.reply(ctx, m, "Usage: /setlang <code>, e.g. /setlang fr")
		return
	}
	code := strings.ToLower(args[0])
	r.updateSettings(ctx, m, func(s *storage.ChatSettings) { s.TargetLang = code },
		"Target language set to "+code+".")
}

func (r *Router) cmdSetLimit(ctx context.Context, m *transport.Message, args []string) {
	if len(args) != 1 {
		r.reply(ctx, m, "Usage: /setlimit <per-minute>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 || n > 60 {
		r.reply(ctx, m, "Limit must be between 1 and 60 requests per minute.")
		return
	}
	r.updateSettings(ctx, m, func(s *storage.ChatSettings) { s.RateLimit = n },
		fmt.Sprintf("Rate limit set to %d per minute.", n))
}

func (r *Router) cmdSetErrors(ctx context.Context, m *transport.Message, args []string) {
	target := m.ChatID
	if len(args) == 1 {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			r.reply(ctx, m, "Usage: /seterrors [chat_id] (no argument = this chat, 0 = off)")
			return
		}
		target = n
	}
	msg := "Error notifications disabled."
	if target != 0 {
		msg = fmt.Sprintf("Error notifications will go to chat %d.", target)
	}
	r.updateSettings(ctx, m, func(s *storage.ChatSettings) { s.ErrorChatID = target }, msg)
}

func (r *Router) cmdSetEmoji(ctx context.Context, m *transport.Message, args []string) {
	if len(args) != 1 {
		r.reply(ctx, m, "Usage: /setemoji <emoji>")
		return
	}
	emoji := args[0]
	r.updateSettings(ctx, m, func(s *storage.ChatSettings) { s.TriggerEmoji = emoji },
		"Trigger emoji set to "+emoji+".")
}

func (r *Router) cmdWatch(ctx context.Context, m *transport.Message, on bool) {
	msg := "Reaction triggers disabled here."
	if on {
		msg = "Reaction triggers enabled here. React with the trigger emoji to translate."
	}
	r.updateSettings(ctx, m, func(s *storage.ChatSettings) {
		// Fresh slice: the loaded one may share its backing array with
		// whatever the store handed to concurrent readers.
		filtered := make([]int64, 0, len(s.Watched)+1)
		for _, id := range s.Watched {
			if id != m.ChatID {
				filtered = append(filtered, id)
			}
		}
		if on {
			filtered = append(filtered, m.ChatID)
		}
		s.Watched = filtered
	}, msg)
}

func (r *Router) updateSettings(ctx context.Context, m *transport.Message, mut func(*storage.ChatSettings), okMsg string) {
	if r.store == nil {
		r.reply(ctx, m, "Settings storage is not configured.")
		return
	}
	settings, err := r.store.GetSettings(ctx, m.ChatID)
	if err != nil {
		r.log.Warn("settings read failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		r.reply(ctx, m, "Couldn't read settings, try again.")
		return
	}
	mut(&settings)
	if err := r.store.PutSettings(ctx, settings); err != nil {
		r.log.Warn("settings write failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		r.reply(ctx, m, "Couldn't save settings, try again.")
		return
	}
	r.reply(ctx, m, okMsg)
}

// ---- helpers ----

func (r *Router) settings(ctx context.Context, chatID int64) storage.ChatSettings {
	if r.store == nil {
		return storage.ChatSettings{ChatID: chatID}
	}
	s, err := r.store.GetSettings(ctx, chatID)
	if err != nil {
		// Eventually-consistent reads are fine; fall back to defaults.
		r.log.Warn("settings read failed, using defaults", logx.Int64("chat", chatID), logx.Err(err))
		return storage.ChatSettings{ChatID: chatID}
	}
	return s
}

func (r *Router) targetLang(s storage.ChatSettings) string {
	if s.TargetLang != "" {
		return s.TargetLang
	}
	return r.defaults.TargetLang
}

func (r *Router) rateLimit(s storage.ChatSettings) int {
	if s.RateLimit > 0 {
		return s.RateLimit
	}
	return r.defaults.RateLimit
}

func (r *Router) remember(chatID int64, msgID int, text string) {
	if text == "" {
		return
	}
	k := msgKey{chatID: chatID, msgID: msgID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recent[k]; !ok {
		r.order = append(r.order, k)
	}
	r.recent[k] = text
	for len(r.order) > recentTextLimit {
		old := r.order[0]
		r.order = r.order[1:]
		delete(r.recent, old)
	}
}

func (r *Router) recall(chatID int64, msgID int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recent[msgKey{chatID: chatID, msgID: msgID}]
}

func triggerID(chatID int64, msgID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(msgID)
}

func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := fields[0]
	// Strip the @botname suffix Telegram appends in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}
