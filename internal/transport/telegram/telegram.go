// Package telegram adapts telebot's update stream to the transport
// abstraction. It is deliberately thin: triggers in, text out.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"lingobot/internal/transport"
	logx "lingobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- transport.Update)

	runMu    sync.Mutex
	running  bool
	pollDone chan struct{} // closed when bot.Start returns

	// stopOnce guards the stop signal: telebot's Stop sends on an
	// unbuffered channel the poll loop receives exactly once, so a
	// second delivery would block forever.
	stopOnce sync.Once

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the poll loop; reported periodically, not per update.
	droppedUpdates uint64
}

// newPoller builds the long poller. Reaction updates are opt-in:
// Telegram omits them from getUpdates unless allowed_updates asks.
func newPoller(timeout time.Duration) *tele.LongPoller {
	return &tele.LongPoller{
		Timeout:        timeout,
		AllowedUpdates: []string{"message", "edited_message", "message_reaction"},
	}
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: newPoller(timeout),
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		msg := &transport.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		}
		if m.ReplyTo != nil {
			msg.ReplyToID = m.ReplyTo.ID
			msg.ReplyToText = m.ReplyTo.Text
		}
		a.sendUpdate(transport.Update{Kind: transport.UpdateMessage, Message: msg})
		return nil
	})

	a.bot.Handle(tele.OnMessageReaction, func(c tele.Context) error {
		mr := c.Update().MessageReaction
		if mr == nil || mr.Chat == nil || mr.User == nil {
			return nil
		}
		emoji := ""
		if len(mr.NewReaction) > 0 {
			emoji = mr.NewReaction[len(mr.NewReaction)-1].Emoji
		}
		if emoji == "" {
			// Reaction removed or custom emoji only; not a trigger.
			return nil
		}
		a.sendUpdate(transport.Update{Kind: transport.UpdateReaction, Reaction: &transport.Reaction{
			MessageID: mr.MessageID,
			ChatID:    mr.Chat.ID,
			FromID:    mr.User.ID,
			Emoji:     emoji,
		}})
		return nil
	})
}

func (a *Adapter) sendUpdate(up transport.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- transport.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	pollDone := make(chan struct{})
	a.pollDone = pollDone
	a.runMu.Unlock()

	go func() {
		<-ctx.Done()
		a.signalStop()
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	go func() {
		a.log.Info("polling started")
		a.bot.Start() // blocks until the stop signal
		close(pollDone)
		a.log.Info("polling stopped")
	}()
	return nil
}

// signalStop delivers the stop signal at most once, off the caller's
// goroutine, so neither the context watcher nor Stop can hang on it.
func (a *Adapter) signalStop() {
	a.stopOnce.Do(func() {
		go a.bot.Stop()
	})
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	wasRunning := a.running
	a.running = false
	pollDone := a.pollDone
	var nilOut chan<- transport.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.signalStop()

	// Bounded grace: a getUpdates long-poll may still be in flight, and
	// shutdown should stay snappy anyway.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-pollDone:
	case <-t.C:
		a.log.Warn("poll loop did not exit within the grace window")
	case <-ctx.Done():
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	_ = ctx // telebot does not take a context per call

	if opt == nil {
		opt = &transport.SendOptions{}
	}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
	}
	if to.ReplyTo != 0 {
		sendOpt.ReplyTo = &tele.Message{ID: to.ReplyTo, Chat: &tele.Chat{ID: to.ChatID}}
	}

	m, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, text, sendOpt)
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, MessageID: m.ID}, nil
}
