package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upgrade-alerts/internal/alerting"
	"upgrade-alerts/internal/config"
	"upgrade-alerts/internal/fetcher"
	"upgrade-alerts/internal/metrics"
	"upgrade-alerts/internal/scheduler"
	"upgrade-alerts/internal/storage"
	"upgrade-alerts/internal/upgrade"
)

// Notifier fans rendered text out to the subscribers of a network.
type Notifier interface {
	Notify(ctx context.Context, network, text string) alerting.Report
}

// SubscriptionReader is the read side of the subscription registry.
type SubscriptionReader interface {
	Networks(recipient int64) []string
	Len() int
}

// Deps are the collaborators of a Service. Heights, Sink, Metrics and Locker are optional.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Feed      fetcher.UpgradeFetcher
	Heights   fetcher.HeightFetcher
	Tracker   *upgrade.Tracker
	Notifier  Notifier
	Subs      SubscriptionReader
	Sink      alerting.EventSink
	Metrics   *metrics.Metrics
	Locker    storage.AdvisoryLocker
}

// Service runs the poll pipeline: fetch, normalize, track, evaluate thresholds, dispatch.
type Service struct {
	scheduler  *scheduler.Scheduler
	feed       fetcher.UpgradeFetcher
	heights    fetcher.HeightFetcher
	normalizer *upgrade.Normalizer
	tracker    *upgrade.Tracker
	alerts     *upgrade.AlertScheduler
	notifier   Notifier
	subs       SubscriptionReader
	sink       alerting.EventSink
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	notifyChanges bool
	locker        storage.AdvisoryLocker
	lockKey       int64

	running sync.Mutex
	now     func() time.Time
}

// New constructs the polling service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	sink := deps.Sink
	if sink == nil {
		sink = alerting.NopSink{}
	}

	return &Service{
		scheduler:     deps.Scheduler,
		feed:          deps.Feed,
		heights:       deps.Heights,
		normalizer:    upgrade.NewNormalizer(cfg.Networks.AllowList, logger),
		tracker:       deps.Tracker,
		alerts:        upgrade.NewAlertScheduler(deps.Tracker, logger),
		notifier:      deps.Notifier,
		subs:          deps.Subs,
		sink:          sink,
		metrics:       deps.Metrics,
		logger:        logger.With().Str("component", "service").Logger(),
		notifyChanges: cfg.Alerting.NotifyChanges,
		locker:        deps.Locker,
		lockKey:       cfg.Scheduler.AdvisoryLockKey,
		now:           time.Now,
	}
}

// Run begins the polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行单次轮询；上一次仍在运行时跳过本次。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	if !s.running.TryLock() {
		s.logger.Warn().Time("tick", tick).Msg("previous tick still running; skipping")
		s.countTick("skipped")
		return nil
	}
	defer s.running.Unlock()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		s.countTick("skipped")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	start := time.Now()
	outcome := s.executeTick(ctx, tick)
	s.countTick(outcome)
	if s.metrics != nil {
		s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) string {
	outcome := "ok"
	raw, err := s.feed.FetchUpgrades(ctx)
	if err != nil {
		outcome = "feed_error"
		kind := "unknown"
		var feedErr *fetcher.FeedError
		if errors.As(err, &feedErr) {
			kind = string(feedErr.Kind)
		}
		s.logger.Warn().Err(err).Str("kind", kind).Time("tick", tick).Msg("upgrade feed unavailable; treating as empty")
		if s.metrics != nil {
			s.metrics.FeedErrorsTotal.WithLabelValues(kind).Inc()
		}
		raw = nil
	}

	candidates := s.normalizer.Normalize(raw)
	now := s.now().UTC()

	changes := s.tracker.Observe(candidates, now)
	for _, c := range changes {
		s.logger.Info().Str("network", c.Upgrade.Network).Str("kind", c.Kind.String()).
			Str("version", c.Upgrade.Version).Str("block", c.Upgrade.BlockString()).Msg("upgrade change detected")
		if s.metrics != nil {
			s.metrics.ChangesTotal.WithLabelValues(c.Kind.String()).Inc()
		}
		if s.notifyChanges && s.notifier != nil {
			s.dispatch(ctx, c.Upgrade.Network, alerting.RenderChange(c, now))
		}
	}

	events := s.alerts.Evaluate(upgrade.Networks(candidates), now)
	for _, ev := range events {
		if s.metrics != nil {
			s.metrics.AlertsFiredTotal.WithLabelValues(ev.Threshold.Key()).Inc()
		}
		if s.notifier != nil {
			text := alerting.RenderAlert(ev, now, s.blocksRemaining(ctx, ev.Upgrade))
			s.dispatch(ctx, ev.Network, text)
		}
		if err := s.sink.Publish(ctx, ev); err != nil {
			s.logger.Error().Err(err).Str("network", ev.Network).Str("threshold", ev.Threshold.Key()).Msg("failed to publish alert event")
		}
	}

	if s.metrics != nil {
		s.metrics.FeedRecords.Set(float64(len(candidates)))
		s.metrics.TrackedUpgrades.Set(float64(s.tracker.Len()))
		if s.subs != nil {
			s.metrics.Subscribers.Set(float64(s.subs.Len()))
		}
		if outcome == "ok" {
			s.metrics.LastSuccessfulTick.Set(float64(now.Unix()))
		}
	}

	s.logger.Info().Time("tick", tick).Int("candidates", len(candidates)).
		Int("changes", len(changes)).Int("alerts", len(events)).Msg("tick processed")
	return outcome
}

func (s *Service) dispatch(ctx context.Context, network, text string) {
	report := s.notifier.Notify(ctx, network, text)
	s.metrics.RecordSends(report.Sent, report.Failed)
}

// blocksRemaining looks up the live chain height when an RPC endpoint exists for the network.
func (s *Service) blocksRemaining(ctx context.Context, u upgrade.Upgrade) *int64 {
	if s.heights == nil || u.Block == nil {
		return nil
	}
	height, err := s.heights.FetchHeight(ctx, u.Network)
	if err != nil {
		if !errors.Is(err, fetcher.ErrNoEndpoint) {
			s.logger.Debug().Err(err).Str("network", u.Network).Msg("block height lookup failed")
			s.countHeight("error")
		}
		return nil
	}
	s.countHeight("ok")
	left := *u.Block - int64(height)
	if left < 0 {
		left = 0
	}
	return &left
}

// ListUpcoming returns tracked upgrades for the recipient's networks, skipping those that
// started more than a day ago. Unknown-time upgrades are included.
func (s *Service) ListUpcoming(recipient int64, now time.Time) []upgrade.Upgrade {
	networks := s.subs.Networks(recipient)
	if len(networks) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(networks))
	for _, n := range networks {
		want[n] = struct{}{}
	}

	out := make([]upgrade.Upgrade, 0, len(networks))
	for _, u := range s.tracker.Snapshot() {
		if _, ok := want[u.Network]; !ok {
			continue
		}
		if h, known := u.HoursUntil(now); known && h < -24 {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Tracker exposes the tracked upgrade state for read-only consumers.
func (s *Service) Tracker() *upgrade.Tracker {
	return s.tracker
}

func (s *Service) countTick(outcome string) {
	if s.metrics != nil {
		s.metrics.TicksTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countHeight(status string) {
	if s.metrics != nil {
		s.metrics.HeightLookupsTotal.WithLabelValues(status).Inc()
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
