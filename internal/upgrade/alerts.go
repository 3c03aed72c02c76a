package upgrade

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertScheduler decides which thresholds newly crossed on a tick.
type AlertScheduler struct {
	tracker *Tracker
	newID   func() string
	logger  zerolog.Logger
}

// NewAlertScheduler binds a scheduler to the tracker whose flags it owns.
func NewAlertScheduler(tracker *Tracker, logger zerolog.Logger) *AlertScheduler {
	return &AlertScheduler{
		tracker: tracker,
		newID:   uuid.NewString,
		logger:  logger.With().Str("component", "alert_scheduler").Logger(),
	}
}

// Evaluate flips and returns every newly crossed threshold for the given networks.
// Events are ordered by network (input order) and then by threshold table order.
func (s *AlertScheduler) Evaluate(networks []string, now time.Time) []AlertEvent {
	now = now.UTC()
	events := make([]AlertEvent, 0)
	s.tracker.update(networks, func(u *Upgrade) {
		h, ok := u.HoursUntil(now)
		if !ok {
			return
		}
		for _, th := range Thresholds() {
			if u.Alerts.Has(th) || !th.Crossed(h) {
				continue
			}
			u.Alerts = u.Alerts.With(th)
			events = append(events, AlertEvent{
				ID:        s.newID(),
				Network:   u.Network,
				Threshold: th,
				Upgrade:   u.Clone(),
				FiredAt:   now,
			})
			s.logger.Info().Str("network", u.Network).Str("threshold", th.Key()).
				Float64("hours_until", h).Msg("threshold crossed")
		}
	})
	return events
}

// Networks returns the network keys of candidates in order.
func Networks(candidates []Upgrade) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Network)
	}
	return out
}
