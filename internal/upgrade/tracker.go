package upgrade

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TrackerOptions tune change handling.
type TrackerOptions struct {
	// RearmOnPostpone clears, on a changed upgrade, every flag whose threshold is no
	// longer crossed at the new estimate. Off by default: flags carry forward.
	RearmOnPostpone bool
}

// Tracker holds the last known upgrade per network and its alert flags.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*Upgrade
	opts    TrackerOptions
	logger  zerolog.Logger
}

// NewTracker constructs an empty tracker.
func NewTracker(opts TrackerOptions, logger zerolog.Logger) *Tracker {
	return &Tracker{
		entries: make(map[string]*Upgrade),
		opts:    opts,
		logger:  logger.With().Str("component", "tracker").Logger(),
	}
}

// Observe merges one poll's candidates into the cache and returns the change-set.
func (t *Tracker) Observe(candidates []Upgrade, now time.Time) []Change {
	now = now.UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	changes := make([]Change, 0)
	for _, cand := range candidates {
		old, ok := t.entries[cand.Network]
		if !ok {
			u := cand.Clone()
			u.Alerts = 0
			u.FirstSeen = now
			u.UpdatedAt = now
			t.entries[u.Network] = &u
			t.logger.Info().Str("network", u.Network).Str("version", u.Version).Str("block", u.BlockString()).Msg("new upgrade tracked")
			changes = append(changes, Change{Kind: ChangeNew, Upgrade: u.Clone()})
			continue
		}

		if old.Version != cand.Version || !sameBlock(old.Block, cand.Block) {
			prev := old.Clone()
			u := cand.Clone()
			u.Alerts = old.Alerts
			u.FirstSeen = old.FirstSeen
			u.UpdatedAt = now
			if t.opts.RearmOnPostpone {
				u.Alerts = rearm(u, now)
			}
			t.entries[u.Network] = &u
			t.logger.Info().Str("network", u.Network).
				Str("old_version", prev.Version).Str("version", u.Version).
				Str("old_block", prev.BlockString()).Str("block", u.BlockString()).
				Strs("alerts_kept", u.Alerts.Keys()).
				Msg("upgrade changed")
			changes = append(changes, Change{Kind: ChangeUpdated, Upgrade: u.Clone(), Previous: &prev})
			continue
		}

		// Same upgrade: keep flags, refresh the moving estimate.
		old.EstimatedTime = cand.EstimatedTime
		old.RawTime = cand.RawTime
		if cand.ChainName != "" {
			old.ChainName = cand.ChainName
		}
		old.UpdatedAt = now
	}
	return changes
}

func rearm(u Upgrade, now time.Time) Flags {
	h, ok := u.HoursUntil(now)
	if !ok {
		return u.Alerts
	}
	flags := u.Alerts
	for _, th := range Thresholds() {
		if flags.Has(th) && !th.Crossed(h) {
			flags = flags.Without(th)
		}
	}
	return flags
}

// Get returns a copy of the tracked upgrade for network.
func (t *Tracker) Get(network string) (Upgrade, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.entries[NormalizeNetwork(network)]
	if !ok {
		return Upgrade{}, false
	}
	return u.Clone(), true
}

// Snapshot returns deep copies of every tracked upgrade sorted by network.
func (t *Tracker) Snapshot() []Upgrade {
	t.mu.RLock()
	out := make([]Upgrade, 0, len(t.entries))
	for _, u := range t.entries {
		out = append(out, u.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out
}

// Len returns the number of tracked networks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// update runs fn against the live entries of networks, in that order, under the write lock.
func (t *Tracker) update(networks []string, fn func(u *Upgrade)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, n := range networks {
		if u, ok := t.entries[n]; ok {
			fn(u)
		}
	}
}
