package alerting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"upgrade-alerts/internal/upgrade"
)

// MaxMessageRunes keeps messages under the Telegram 4096 character limit.
const MaxMessageRunes = 4000

// RenderAlert formats a threshold alert. blocksLeft is optional and only shown when known.
func RenderAlert(ev upgrade.AlertEvent, now time.Time, blocksLeft *int64) string {
	u := ev.Upgrade
	b := strings.Builder{}
	switch ev.Threshold {
	case upgrade.TwoDaysBefore, upgrade.OneDayBefore:
		b.WriteString(fmt.Sprintf("⚠️ [%s] Chain upgrade approaching!\n", ev.Threshold.Label()))
	case upgrade.TwoHoursBefore:
		b.WriteString(fmt.Sprintf("🚨 [%s] Chain upgrade imminent!\n", ev.Threshold.Label()))
	default:
		b.WriteString(fmt.Sprintf("🚨 [%s] Chain upgrade now!\n", ev.Threshold.Label()))
	}
	writeDetails(&b, u)
	if blocksLeft != nil {
		b.WriteString(fmt.Sprintf("Blocks remaining: %d\n", *blocksLeft))
	}

	if ev.Threshold == upgrade.UpgradeTime {
		b.WriteString("Status: Upgrade time has arrived")
		return b.String()
	}
	if h, ok := u.HoursUntil(now); ok {
		b.WriteString(fmt.Sprintf("Status: Upgrade in approximately %s hours", roundHours(h)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderChange formats a new or changed upgrade announcement.
func RenderChange(c upgrade.Change, now time.Time) string {
	b := strings.Builder{}
	if c.Kind == upgrade.ChangeNew {
		b.WriteString("🆕 New chain upgrade announced\n")
	} else {
		b.WriteString("🔄 Chain upgrade changed\n")
	}
	writeDetails(&b, c.Upgrade)
	if c.Previous != nil {
		if c.Previous.Version != c.Upgrade.Version {
			b.WriteString(fmt.Sprintf("Previous version: %s\n", c.Previous.Version))
		}
		if c.Previous.BlockString() != c.Upgrade.BlockString() {
			b.WriteString(fmt.Sprintf("Previous block: %s\n", c.Previous.BlockString()))
		}
	}
	if status, ok := FormatStatus(c.Upgrade, now); ok {
		b.WriteString(fmt.Sprintf("Status: %s\n", status))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus describes how far away an upgrade is. ok is false when the upgrade
// started more than a day ago and should not be listed.
func FormatStatus(u upgrade.Upgrade, now time.Time) (string, bool) {
	h, known := u.HoursUntil(now)
	if !known {
		return "time unknown", true
	}
	switch {
	case h > 24:
		days := decimal.NewFromFloat(h).Div(decimal.NewFromInt(24)).Round(1)
		return fmt.Sprintf("~%s days", days.StringFixed(1)), true
	case h > 0:
		return fmt.Sprintf("~%s hours", roundHours(h)), true
	case h > -24:
		return fmt.Sprintf("started %s hours ago", roundHours(-h)), true
	default:
		return "", false
	}
}

// RenderUpcoming lists upgrades for /listupgrades. Upgrades past the listing window are skipped.
func RenderUpcoming(upgrades []upgrade.Upgrade, now time.Time) string {
	b := strings.Builder{}
	b.WriteString("📊 Upcoming Upgrades\n\n")
	listed := 0
	for _, u := range upgrades {
		status, ok := FormatStatus(u, now)
		if !ok {
			continue
		}
		listed++
		b.WriteString(fmt.Sprintf("🔸 %s\n", strings.ToUpper(u.Network)))
		b.WriteString(fmt.Sprintf("   Version: %s\n", u.Version))
		b.WriteString(fmt.Sprintf("   Time: %s\n", displayTime(u)))
		b.WriteString(fmt.Sprintf("   Status: %s\n\n", status))
	}
	if listed == 0 {
		return "No upcoming upgrades found for your subscribed networks."
	}
	return strings.TrimRight(b.String(), "\n")
}

// WelcomeText is the /start reply.
func WelcomeText() string {
	return "Welcome to the Cosmos Upgrade Tracker Bot!\n\n" +
		"Use /subscribe <network> to receive alerts for specific networks (e.g. /subscribe osmosis cosmos).\n" +
		"Use /unsubscribe <network> to remove a subscription.\n" +
		"Use /list to see which networks you've subscribed to.\n" +
		"Use /listupgrades to see upcoming upgrades for your networks.\n" +
		"Use /test to check that alerts reach this chat."
}

// RenderTest formats the /test alert with the chat's current subscriptions.
func RenderTest(networks []string) string {
	b := strings.Builder{}
	b.WriteString("🔔 Test Alert!\n")
	b.WriteString("This is a test upgrade notification.\n")
	b.WriteString("Network: test-chain\n")
	b.WriteString("Version: v1.0.0-test\n")
	b.WriteString("Estimated Time: in 2 days\n")
	b.WriteString("\nCurrent subscriptions for this chat:\n")
	if len(networks) == 0 {
		b.WriteString("No subscriptions yet")
		return b.String()
	}
	sorted := append([]string(nil), networks...)
	sort.Strings(sorted)
	b.WriteString(strings.Join(sorted, ", "))
	return b.String()
}

// SplitText breaks text into chunks of at most limit runes, preferring newline boundaries.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return appendChunk(nil, text)
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = appendChunk(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	return appendChunk(chunks, string(runes))
}

// appendChunk drops whitespace-only chunks; the Bot API rejects empty messages.
func appendChunk(chunks []string, chunk string) []string {
	if strings.TrimSpace(chunk) == "" {
		return chunks
	}
	return append(chunks, chunk)
}

func writeDetails(b *strings.Builder, u upgrade.Upgrade) {
	b.WriteString(fmt.Sprintf("Network: %s\n", u.Network))
	if u.ChainName != "" {
		b.WriteString(fmt.Sprintf("Chain: %s\n", u.ChainName))
	}
	b.WriteString(fmt.Sprintf("Version: %s\n", u.Version))
	b.WriteString(fmt.Sprintf("Block: %s\n", u.BlockString()))
	b.WriteString(fmt.Sprintf("Time: %s\n", displayTime(u)))
}

func displayTime(u upgrade.Upgrade) string {
	if u.TimeKnown() {
		return u.EstimatedTime.UTC().Format("2006-01-02 15:04 UTC")
	}
	if u.RawTime != "" {
		return u.RawTime + " (unparsed)"
	}
	return "unknown"
}

func roundHours(h float64) string {
	return decimal.NewFromFloat(h).Round(1).StringFixed(1)
}
