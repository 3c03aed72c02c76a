package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"upgrade-alerts/internal/alerting"
	"upgrade-alerts/internal/bot"
	"upgrade-alerts/internal/config"
	"upgrade-alerts/internal/fetcher"
	"upgrade-alerts/internal/metrics"
	"upgrade-alerts/internal/scheduler"
	"upgrade-alerts/internal/server"
	"upgrade-alerts/internal/service"
	"upgrade-alerts/internal/storage"
	"upgrade-alerts/internal/subscription"
	"upgrade-alerts/internal/upgrade"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newFeed() *fetcher.Feed {
	return fetcher.NewFeed(fetcher.FeedOptions{
		URL:       a.Config.Feed.URL,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newHeights() *fetcher.EVMHeights {
	heights := fetcher.NewEVMHeights(fetcher.EVMHeightOptions{
		Endpoints: a.Config.Chains.RPC,
		Timeout:   a.Config.Chains.RequestTimeout,
	}, a.Logger)
	if !heights.Enabled() {
		return nil
	}
	return heights
}

func (a *App) newTransport() *alerting.TelegramTransport {
	tg := a.Config.Telegram
	return alerting.NewTelegramTransport(tg.BotToken, tg.APIBase, tg.SendTimeout, a.Logger)
}

func (a *App) newSink() (alerting.EventSink, error) {
	if strings.TrimSpace(a.Config.NATS.URL) == "" {
		return alerting.NopSink{}, nil
	}
	return alerting.NewNATSSink(a.Config.NATS.URL, a.Config.NATS.Subject, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.SubscriptionStore, error) {
	return storage.Open(ctx, a.Config.Storage, a.Config.Database, a.Logger)
}

// fetchCandidates performs one fetch and normalization outside the poll loop.
func (a *App) fetchCandidates(ctx context.Context) ([]upgrade.Upgrade, error) {
	raw, err := a.newFeed().FetchUpgrades(ctx)
	if err != nil {
		return nil, err
	}
	return upgrade.NewNormalizer(a.Config.Networks.AllowList, a.Logger).Normalize(raw), nil
}

// Run executes the long-running alert service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Config.ValidateTransport(); err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close subscription store")
		}
	}()

	registry, err := subscription.Open(ctx, store, a.Logger)
	if err != nil {
		return err
	}

	sink, err := a.newSink()
	if err != nil {
		return err
	}
	defer sink.Close()

	var heights fetcher.HeightFetcher
	if h := a.newHeights(); h != nil {
		defer h.Close()
		heights = h
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	tracker := upgrade.NewTracker(upgrade.TrackerOptions{RearmOnPostpone: a.Config.Alerting.RearmOnPostpone}, a.Logger)
	dispatcher := alerting.NewDispatcher(a.newTransport(), registry, a.Config.Alerting.DispatchConcurrency, a.Logger)

	svc := service.New(a.Config, service.Deps{
		Scheduler: sched,
		Feed:      a.newFeed(),
		Heights:   heights,
		Tracker:   tracker,
		Notifier:  dispatcher,
		Subs:      registry,
		Sink:      sink,
		Metrics:   m,
		Locker:    locker,
	}, a.Logger)

	tg := a.Config.Telegram
	tgBot, err := bot.New(bot.Options{
		Token:       tg.BotToken,
		APIBase:     tg.APIBase,
		PollTimeout: tg.PollTimeout,
	}, bot.NewCommands(registry, svc, a.Logger), a.Logger)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	if addr := strings.TrimSpace(a.Config.Server.ListenAddr); addr != "" {
		srv := server.New(server.Options{
			ListenAddr:   addr,
			ReadTimeout:  a.Config.Server.ReadTimeout,
			WriteTimeout: a.Config.Server.WriteTimeout,
		}, tracker, registry, m, a.Logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				a.Logger.Error().Err(err).Msg("http server terminated")
				stop()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		tgBot.Run(ctx)
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.Logger.Debug().Err(err).Msg("sd_notify ready failed")
	} else if ok {
		a.Logger.Debug().Msg("notified systemd readiness")
	}

	a.Logger.Info().Msg("starting upgrade alert service")
	err = svc.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	stop()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("upgrade alert service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the current schedule.
type ExportOptions struct {
	PNGPath string
	CSVPath string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Network string
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Recipient int64
	Network   string
	Threshold string
}
