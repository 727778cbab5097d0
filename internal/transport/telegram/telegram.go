// Package telegram delivers notifications through the Telegram Bot API and
// serves owner-only chat commands over long polling.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "feedbridge/internal/runtime/supervisor"
	"feedbridge/internal/transport"
	logx "feedbridge/pkg/logx"
	"feedbridge/pkg/tgui"
)

const (
	textLimit    = 4000
	captionLimit = 1024
)

type Config struct {
	Token       string
	ChatID      int64
	ThreadID    int
	PollTimeout time.Duration
	// Commands enables long polling for /status, /check and /help.
	Commands bool
	OwnerIDs []int64
	// APIURL overrides the Bot API endpoint.
	APIURL string
	// Offline skips the getMe call on construction.
	Offline bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	handler atomic.Value // transport.CommandHandler

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
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
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	a.handler.Store(transport.CommandHandler(nil))
	a.bot.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

// Send renders n as HTML. With a media reference it sends a photo whose
// caption carries the text, unless the caption would exceed Telegram's limit.
func (a *Adapter) Send(ctx context.Context, n transport.Notification) error {
	if a.cfg.ChatID == 0 {
		return errors.New("telegram chat_id is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := &tele.Chat{ID: a.cfg.ChatID}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: a.cfg.ThreadID}

	text := Render(n)
	if n.MediaRef != "" && len([]rune(text)) <= captionLimit {
		photo := &tele.Photo{File: tele.FromURL(n.MediaRef), Caption: text}
		_, err := a.bot.Send(chat, photo, opts)
		if err == nil {
			return nil
		}
		// Telegram rejects some remote images; the text still goes out.
		a.log.Debug("photo send failed; falling back to text", logx.String("media", n.MediaRef), logx.Err(err))
	}
	return a.sendChunks(ctx, chat, text, opts)
}

// SendLog posts a plain log line; it satisfies logx.ChatSender.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	chat := &tele.Chat{ID: chatID}
	return a.sendChunks(ctx, chat, text, &tele.SendOptions{ThreadID: threadID, DisableWebPagePreview: true})
}

func (a *Adapter) sendChunks(ctx context.Context, chat *tele.Chat, text string, opts *tele.SendOptions) error {
	for _, chunk := range tgui.Split(text, textLimit, opts.ParseMode == tele.ModeHTML) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, opts); err != nil {
			return err
		}
	}
	return nil
}

// Render formats a notification as Telegram HTML.
func Render(n transport.Notification) string {
	var m tgui.Msg
	if n.Title != "" {
		m.Block(tgui.B(n.Title))
	}
	m.Block(tgui.Esc(n.Body))
	if n.URL != "" {
		m.Block(tgui.Link("View Post", n.URL))
	}
	if n.Footer != "" {
		m.Footer(tgui.I(n.Footer))
	}
	return m.String()
}

// OnCommand installs the handler for owner commands.
func (a *Adapter) OnCommand(h transport.CommandHandler) { a.handler.Store(h) }

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil {
		return nil
	}
	cmd, ok := ParseCommand(m.Text)
	if !ok {
		return nil
	}
	if !a.isOwner(m.Sender.ID) {
		a.log.Debug("ignoring command from non-owner", logx.Int64("from", m.Sender.ID), logx.String("cmd", cmd.Name))
		return nil
	}
	h, _ := a.handler.Load().(transport.CommandHandler)
	if h == nil {
		return nil
	}
	cmd.Target = transport.ChatTarget{ChatID: m.Chat.ID, ThreadID: m.ThreadID}
	cmd.FromID = m.Sender.ID
	cmd.FromName = m.Sender.Username

	// Handlers may run a full sync cycle; keep the poller free.
	a.runMu.Lock()
	sup := a.sup
	a.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Go0("command."+cmd.Name, func(ctx context.Context) {
		reply, err := h(ctx, cmd)
		if err != nil {
			reply = "error: " + err.Error()
		}
		if reply == "" {
			return
		}
		opts := &tele.SendOptions{ThreadID: cmd.Target.ThreadID, DisableWebPagePreview: true}
		if err := a.sendChunks(ctx, &tele.Chat{ID: cmd.Target.ChatID}, reply, opts); err != nil {
			a.log.Warn("command reply failed", logx.String("cmd", cmd.Name), logx.Err(err))
		}
	})
	return nil
}

func (a *Adapter) isOwner(id int64) bool {
	for _, o := range a.cfg.OwnerIDs {
		if o == id {
			return true
		}
	}
	return false
}

// ParseCommand splits "/name@bot arg1 arg2". ok is false for non-commands.
func ParseCommand(text string) (transport.Command, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return transport.Command{}, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return transport.Command{}, false
	}
	return transport.Command{Name: strings.ToLower(name), Args: fields[1:]}, true
}

// Start begins long polling when commands are enabled.
func (a *Adapter) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running || !a.cfg.Commands {
		return nil
	}
	a.running = true
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	sup := a.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// Start blocks until Stop; restart it if it returns while we're still up.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second), rtsup.WithPublishFirstError(true))
	return nil
}

// Stop ends polling, waiting at most two seconds for the long poll.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	was := a.running
	a.running = false
	a.runMu.Unlock()
	if !was || sup == nil {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Stop(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with error", logx.Err(err))
	}
	return nil
}
