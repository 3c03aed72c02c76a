package upgrade

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawUpgrade mirrors one element of the upstream chain_upgrades feed.
type RawUpgrade struct {
	Network              string  `json:"network"`
	ChainName            string  `json:"chain_name"`
	NodeVersion          string  `json:"node_version"`
	Block                Height  `json:"block"`
	EstimatedUpgradeTime *string `json:"estimated_upgrade_time"`
}

// UnmarshalJSON implements json.Unmarshaler. A non-string estimated time decodes as unknown.
func (r *RawUpgrade) UnmarshalJSON(data []byte) error {
	type plain RawUpgrade
	aux := struct {
		*plain
		EstimatedUpgradeTime json.RawMessage `json:"estimated_upgrade_time"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.EstimatedUpgradeTime = nil
	raw := bytes.TrimSpace(aux.EstimatedUpgradeTime)
	if len(raw) == 0 || raw[0] != '"' {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		r.EstimatedUpgradeTime = &s
	}
	return nil
}

// Height is a nullable block height that tolerates numbers, numeric strings and null.
// Anything else, such as "TBD", decodes as an unknown height.
type Height struct {
	Value int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *Height) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*h = Height{}
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" {
		*h = Height{}
		return nil
	}
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		// Fractional heights show up occasionally; keep the integer part.
		f, ferr := strconv.ParseFloat(trimmed, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			*h = Height{}
			return nil
		}
		v = int64(f)
	}
	*h = Height{Value: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h Height) MarshalJSON() ([]byte, error) {
	if !h.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(h.Value, 10)), nil
}

// Upgrade is the canonical tracked record, one per network.
type Upgrade struct {
	Network       string    `json:"network"`
	ChainName     string    `json:"chain_name,omitempty"`
	Version       string    `json:"version"`
	Block         *int64    `json:"block,omitempty"`
	EstimatedTime time.Time `json:"estimated_time"`
	RawTime       string    `json:"raw_time,omitempty"`
	Alerts        Flags     `json:"alerts"`
	FirstSeen     time.Time `json:"first_seen"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TimeKnown reports whether the estimated upgrade time parsed successfully.
func (u Upgrade) TimeKnown() bool {
	return !u.EstimatedTime.IsZero()
}

// HoursUntil returns hours from now to the estimated time; ok is false when the time is unknown.
func (u Upgrade) HoursUntil(now time.Time) (float64, bool) {
	if !u.TimeKnown() {
		return 0, false
	}
	return u.EstimatedTime.UTC().Sub(now.UTC()).Hours(), true
}

// Clone returns a deep copy safe to hand to readers.
func (u Upgrade) Clone() Upgrade {
	cp := u
	if u.Block != nil {
		b := *u.Block
		cp.Block = &b
	}
	return cp
}

// BlockString formats the target height for display.
func (u Upgrade) BlockString() string {
	if u.Block == nil {
		return "n/a"
	}
	return strconv.FormatInt(*u.Block, 10)
}

// ChangeKind classifies a tracker observation.
type ChangeKind int

const (
	// ChangeNew marks the first sighting of a network.
	ChangeNew ChangeKind = iota + 1
	// ChangeUpdated marks a version or block change for a tracked network.
	ChangeUpdated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeNew:
		return "new"
	case ChangeUpdated:
		return "changed"
	default:
		return "unknown"
	}
}

// Change is one entry of a poll's change-set.
type Change struct {
	Kind     ChangeKind
	Upgrade  Upgrade
	Previous *Upgrade
}

// AlertEvent records one threshold crossing for one network.
type AlertEvent struct {
	ID        string    `json:"id"`
	Network   string    `json:"network"`
	Threshold Threshold `json:"threshold"`
	Upgrade   Upgrade   `json:"upgrade"`
	FiredAt   time.Time `json:"fired_at"`
}

func sameBlock(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
