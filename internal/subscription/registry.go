package subscription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"upgrade-alerts/internal/storage"
)

// Registry maps recipients to the networks they follow. Every mutation is persisted
// in full before it becomes visible to readers.
type Registry struct {
	mu     sync.RWMutex
	store  storage.SubscriptionStore
	subs   storage.Subscriptions
	logger zerolog.Logger
}

// Open loads the persisted mapping from store.
func Open(ctx context.Context, store storage.SubscriptionStore, logger zerolog.Logger) (*Registry, error) {
	subs, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	r := &Registry{
		store:  store,
		subs:   subs.Normalize(),
		logger: logger.With().Str("component", "subscriptions").Logger(),
	}
	r.logger.Info().Int("recipients", len(r.subs)).Msg("subscriptions loaded")
	return r, nil
}

// Subscribe adds networks for recipient and returns the ones that were not already present,
// in argument order.
func (r *Registry) Subscribe(ctx context.Context, recipient int64, networks []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := toSet(r.subs[recipient])
	added := make([]string, 0, len(networks))
	for _, n := range networks {
		n = normalize(n)
		if n == "" {
			continue
		}
		if _, ok := current[n]; ok {
			continue
		}
		current[n] = struct{}{}
		added = append(added, n)
	}
	if len(added) == 0 {
		return added, nil
	}

	if err := r.commit(ctx, recipient, current); err != nil {
		return nil, err
	}
	r.logger.Info().Int64("recipient", recipient).Strs("networks", added).Msg("subscribed")
	return added, nil
}

// Unsubscribe removes networks for recipient and returns the ones that were actually removed.
func (r *Registry) Unsubscribe(ctx context.Context, recipient int64, networks []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := toSet(r.subs[recipient])
	removed := make([]string, 0, len(networks))
	for _, n := range networks {
		n = normalize(n)
		if _, ok := current[n]; !ok {
			continue
		}
		delete(current, n)
		removed = append(removed, n)
	}
	if len(removed) == 0 {
		return removed, nil
	}

	if err := r.commit(ctx, recipient, current); err != nil {
		return nil, err
	}
	r.logger.Info().Int64("recipient", recipient).Strs("networks", removed).Msg("unsubscribed")
	return removed, nil
}

// commit persists the full mapping with recipient's new set and swaps it in on success.
// Caller holds the write lock.
func (r *Registry) commit(ctx context.Context, recipient int64, networks map[string]struct{}) error {
	next := make(storage.Subscriptions, len(r.subs)+1)
	for id, list := range r.subs {
		next[id] = list
	}
	if len(networks) == 0 {
		delete(next, recipient)
	} else {
		next[recipient] = fromSet(networks)
	}

	if err := r.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist subscriptions: %w", err)
	}
	r.subs = next
	return nil
}

// Networks returns the sorted networks recipient follows.
func (r *Registry) Networks(recipient int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.subs[recipient]...)
}

// Recipients returns, in ascending order, every recipient subscribed to network.
func (r *Registry) Recipients(network string) []int64 {
	network = normalize(network)
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0)
	for id, networks := range r.subs {
		idx := sort.SearchStrings(networks, network)
		if idx < len(networks) && networks[idx] == network {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns a deep copy of the whole mapping.
func (r *Registry) Snapshot() storage.Subscriptions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(storage.Subscriptions, len(r.subs))
	for id, networks := range r.subs {
		out[id] = append([]string(nil), networks...)
	}
	return out
}

// Len returns the number of recipients with at least one subscription.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func normalize(network string) string {
	return strings.ToLower(strings.TrimSpace(network))
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, n := range list {
		set[n] = struct{}{}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	list := make([]string, 0, len(set))
	for n := range set {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}
