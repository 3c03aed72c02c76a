package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"

	"upgrade-alerts/internal/alerting"
)

// Options configure the long-polling Telegram client.
type Options struct {
	Token       string
	APIBase     string
	PollTimeout time.Duration
}

const storeTimeout = 10 * time.Second

// Bot receives chat commands through Telegram long polling.
type Bot struct {
	bot    *tele.Bot
	cmds   *Commands
	logger zerolog.Logger

	// base is the Run context; subscription writes derive from it.
	base context.Context
}

// New connects to the Bot API and registers the command handlers.
func New(opts Options, cmds *Commands, logger zerolog.Logger) (*Bot, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	l := logger.With().Str("component", "telegram_bot").Logger()
	settings := tele.Settings{
		Token:  opts.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			ev := l.Error().Err(err)
			if c != nil && c.Chat() != nil {
				ev = ev.Int64("chat_id", c.Chat().ID)
			}
			ev.Msg("telegram handler error")
		},
	}
	if base := strings.TrimSpace(opts.APIBase); base != "" {
		settings.URL = base
	}

	tb, err := tele.NewBot(settings)
	if err != nil {
		return nil, err
	}

	b := &Bot{bot: tb, cmds: cmds, logger: l, base: context.Background()}
	b.register()
	return b, nil
}

func (b *Bot) register() {
	b.bot.Handle("/start", func(c tele.Context) error {
		return b.reply(c, b.cmds.Start())
	})
	b.bot.Handle("/subscribe", func(c tele.Context) error {
		ctx, cancel := b.storeContext()
		defer cancel()
		return b.reply(c, b.cmds.Subscribe(ctx, c.Chat().ID, c.Args()))
	})
	b.bot.Handle("/unsubscribe", func(c tele.Context) error {
		ctx, cancel := b.storeContext()
		defer cancel()
		return b.reply(c, b.cmds.Unsubscribe(ctx, c.Chat().ID, c.Args()))
	})
	b.bot.Handle("/list", func(c tele.Context) error {
		return b.reply(c, b.cmds.List(c.Chat().ID))
	})
	b.bot.Handle("/listupgrades", func(c tele.Context) error {
		return b.reply(c, b.cmds.ListUpgrades(c.Chat().ID))
	})
	b.bot.Handle("/test", func(c tele.Context) error {
		return b.reply(c, b.cmds.Test(c.Chat().ID))
	})
}

func (b *Bot) reply(c tele.Context, text string) error {
	for _, chunk := range alerting.SplitText(text, alerting.MaxMessageRunes) {
		if err := c.Send(chunk, tele.NoPreview); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.base, storeTimeout)
}

// Run polls for updates until ctx is cancelled. In-flight subscription writes are cancelled with it.
func (b *Bot) Run(ctx context.Context) {
	b.base = ctx
	b.logger.Info().Str("username", b.bot.Me.Username).Msg("telegram bot polling")
	go b.bot.Start()
	<-ctx.Done()
	b.bot.Stop()
	b.logger.Info().Msg("telegram bot stopped")
}
