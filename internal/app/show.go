package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"upgrade-alerts/internal/upgrade"
)

// Show fetches the feed once and prints the normalized schedule.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	candidates, err := a.fetchCandidates(ctx)
	if err != nil {
		return err
	}

	filter := upgrade.NormalizeNetwork(opts.Network)
	now := time.Now().UTC()

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Network\tVersion\tBlock\tTime (UTC)\tHours\tDue")

	shown := 0
	for _, u := range candidates {
		if filter != "" && u.Network != filter {
			continue
		}
		shown++
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			u.Network,
			sanitizeInline(u.Version),
			u.BlockString(),
			formatTime(u),
			formatHours(u, now),
			strings.Join(dueThresholds(u, now).Keys(), ","),
		)
	}
	writer.Flush()

	if shown == 0 {
		fmt.Fprintln(a.Out, "no upgrades found")
	}
	return nil
}

// dueThresholds reports every threshold already crossed at now.
func dueThresholds(u upgrade.Upgrade, now time.Time) upgrade.Flags {
	var due upgrade.Flags
	h, ok := u.HoursUntil(now)
	if !ok {
		return due
	}
	for _, th := range upgrade.Thresholds() {
		if th.Crossed(h) {
			due = due.With(th)
		}
	}
	return due
}

func formatTime(u upgrade.Upgrade) string {
	if !u.TimeKnown() {
		if u.RawTime != "" {
			return sanitizeInline(u.RawTime) + " (unparsed)"
		}
		return "unknown"
	}
	return u.EstimatedTime.UTC().Format(time.RFC3339)
}

func formatHours(u upgrade.Upgrade, now time.Time) string {
	h, ok := u.HoursUntil(now)
	if !ok {
		return "-"
	}
	return decimal.NewFromFloat(h).StringFixed(1)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
