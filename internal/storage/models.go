package storage

import (
	"sort"
	"strings"
)

// Subscriptions is the persisted recipient -> networks mapping.
type Subscriptions map[int64][]string

// Normalize lowercases, dedupes and sorts every network list and drops empty recipients,
// giving the canonical form that round-trips through every backend.
func (s Subscriptions) Normalize() Subscriptions {
	out := make(Subscriptions, len(s))
	for recipient, networks := range s {
		seen := make(map[string]struct{}, len(networks))
		list := make([]string, 0, len(networks))
		for _, n := range networks {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			list = append(list, n)
		}
		if len(list) == 0 {
			continue
		}
		sort.Strings(list)
		out[recipient] = list
	}
	return out
}

// Recipients returns the recipient ids in ascending order.
func (s Subscriptions) Recipients() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
