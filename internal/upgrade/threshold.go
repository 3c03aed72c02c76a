package upgrade

import "encoding/json"

// Threshold is one of the fixed time-before-upgrade alert boundaries.
type Threshold uint8

const (
	TwoDaysBefore Threshold = iota
	OneDayBefore
	TwoHoursBefore
	UpgradeTime
)

type thresholdSpec struct {
	name  string
	key   string
	hours float64
	label string
}

var thresholdSpecs = [...]thresholdSpec{
	TwoDaysBefore:  {name: "two-days-before", key: "2_days_before", hours: 48, label: "48 HOUR ALERT"},
	OneDayBefore:   {name: "one-day-before", key: "1_day_before", hours: 24, label: "24 HOUR ALERT"},
	TwoHoursBefore: {name: "two-hours-before", key: "2_hours_before", hours: 2, label: "2 HOUR ALERT"},
	UpgradeTime:    {name: "upgrade-time", key: "upgrade_time", hours: 0, label: "UPGRADE TIME"},
}

// Thresholds lists every threshold in chronological (table) order.
func Thresholds() []Threshold {
	return []Threshold{TwoDaysBefore, OneDayBefore, TwoHoursBefore, UpgradeTime}
}

func (t Threshold) valid() bool { return int(t) < len(thresholdSpecs) }

// Name is the human readable threshold name, e.g. "two-days-before".
func (t Threshold) Name() string {
	if !t.valid() {
		return "invalid"
	}
	return thresholdSpecs[t].name
}

// Key is the flag key, e.g. "2_days_before".
func (t Threshold) Key() string {
	if !t.valid() {
		return "invalid"
	}
	return thresholdSpecs[t].key
}

// Hours is the crossing boundary in hours before the upgrade.
func (t Threshold) Hours() float64 {
	if !t.valid() {
		return 0
	}
	return thresholdSpecs[t].hours
}

// Label is the banner used in rendered alerts.
func (t Threshold) Label() string {
	if !t.valid() {
		return "ALERT"
	}
	return thresholdSpecs[t].label
}

func (t Threshold) String() string { return t.Name() }

// MarshalJSON renders the threshold by its flag key.
func (t Threshold) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Key())
}

// Crossed reports whether h (hours until the upgrade) is at or past the boundary.
func (t Threshold) Crossed(h float64) bool {
	return h <= t.Hours()
}

// ParseThreshold resolves a name or flag key.
func ParseThreshold(s string) (Threshold, bool) {
	for _, t := range Thresholds() {
		if s == t.Name() || s == t.Key() {
			return t, true
		}
	}
	return 0, false
}

// Flags is the set of thresholds whose alert has already been attempted.
type Flags uint8

// Has reports whether t is set.
func (f Flags) Has(t Threshold) bool { return f&(1<<t) != 0 }

// With returns f with t set.
func (f Flags) With(t Threshold) Flags { return f | 1<<t }

// Without returns f with t cleared.
func (f Flags) Without(t Threshold) Flags { return f &^ (1 << t) }

// Keys lists the set flag keys in table order.
func (f Flags) Keys() []string {
	keys := make([]string, 0, len(thresholdSpecs))
	for _, t := range Thresholds() {
		if f.Has(t) {
			keys = append(keys, t.Key())
		}
	}
	return keys
}

// MarshalJSON renders flags as the {"2_days_before": true, ...} map used by the API.
func (f Flags) MarshalJSON() ([]byte, error) {
	m := make(map[string]bool, len(thresholdSpecs))
	for _, t := range Thresholds() {
		m[t.Key()] = f.Has(t)
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts the map form produced by MarshalJSON.
func (f *Flags) UnmarshalJSON(data []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Flags
	for k, set := range m {
		if t, ok := ParseThreshold(k); ok && set {
			out = out.With(t)
		}
	}
	*f = out
	return nil
}
