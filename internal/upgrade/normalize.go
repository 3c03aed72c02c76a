package upgrade

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Normalizer converts raw feed records into Upgrade candidates.
type Normalizer struct {
	allow  map[string]struct{}
	logger zerolog.Logger
}

// NewNormalizer builds a normalizer. An empty allow list tracks every network.
func NewNormalizer(allowList []string, logger zerolog.Logger) *Normalizer {
	var allow map[string]struct{}
	for _, n := range allowList {
		n = NormalizeNetwork(n)
		if n == "" {
			continue
		}
		if allow == nil {
			allow = make(map[string]struct{}, len(allowList))
		}
		allow[n] = struct{}{}
	}
	return &Normalizer{allow: allow, logger: logger.With().Str("component", "normalizer").Logger()}
}

// Normalize extracts canonical candidates in input order.
func (n *Normalizer) Normalize(raw []RawUpgrade) []Upgrade {
	out := make([]Upgrade, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for i, rec := range raw {
		network := NormalizeNetwork(rec.Network)
		if network == "" {
			n.logger.Warn().Int("index", i).Str("chain_name", rec.ChainName).Msg("skipping record without network")
			continue
		}
		if !n.Allowed(network) {
			continue
		}
		if _, dup := seen[network]; dup {
			n.logger.Warn().Int("index", i).Str("network", network).Msg("skipping duplicate network in feed")
			continue
		}
		seen[network] = struct{}{}

		u := Upgrade{
			Network:   network,
			ChainName: strings.TrimSpace(rec.ChainName),
			Version:   strings.TrimSpace(rec.NodeVersion),
		}
		if rec.Block.Valid {
			b := rec.Block.Value
			u.Block = &b
		}
		if rec.EstimatedUpgradeTime != nil {
			u.RawTime = strings.TrimSpace(*rec.EstimatedUpgradeTime)
			if t, ok := ParseTime(u.RawTime); ok {
				u.EstimatedTime = t
			} else if u.RawTime != "" {
				n.logger.Debug().Str("network", network).Str("raw_time", u.RawTime).Msg("unparsable estimated upgrade time")
			}
		}
		out = append(out, u)
	}
	return out
}

// Allowed reports whether network passes the allow list.
func (n *Normalizer) Allowed(network string) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[network]
	return ok
}

// NormalizeNetwork lowercases and trims a network identifier.
func NormalizeNetwork(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseTime parses the feed's ISO-8601 timestamps; zone-less values are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
