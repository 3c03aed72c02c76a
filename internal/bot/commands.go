package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upgrade-alerts/internal/alerting"
	"upgrade-alerts/internal/upgrade"
)

// Subscriptions is the registry surface the commands mutate.
type Subscriptions interface {
	Subscribe(ctx context.Context, recipient int64, networks []string) ([]string, error)
	Unsubscribe(ctx context.Context, recipient int64, networks []string) ([]string, error)
	Networks(recipient int64) []string
}

// UpcomingLister lists tracked upgrades relevant to a recipient.
type UpcomingLister interface {
	ListUpcoming(recipient int64, now time.Time) []upgrade.Upgrade
}

// Commands implements the chat command replies independent of the Telegram client.
type Commands struct {
	subs     Subscriptions
	upcoming UpcomingLister
	now      func() time.Time
	logger   zerolog.Logger
}

// NewCommands binds the command handlers to the registry and tracker view.
func NewCommands(subs Subscriptions, upcoming UpcomingLister, logger zerolog.Logger) *Commands {
	return &Commands{
		subs:     subs,
		upcoming: upcoming,
		now:      time.Now,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// Start replies to /start.
func (c *Commands) Start() string {
	return alerting.WelcomeText()
}

// Subscribe replies to /subscribe <network>...
func (c *Commands) Subscribe(ctx context.Context, recipient int64, args []string) string {
	networks := cleanArgs(args)
	if len(networks) == 0 {
		return "Usage: /subscribe <network1> <network2> ..."
	}
	added, err := c.subs.Subscribe(ctx, recipient, networks)
	if err != nil {
		c.logger.Error().Err(err).Int64("recipient", recipient).Msg("subscribe failed")
		return "Could not save your subscription, please try again later."
	}
	if len(added) == 0 {
		return "You were already subscribed to all of those networks."
	}
	return fmt.Sprintf("Subscribed to: %s", strings.Join(added, ", "))
}

// Unsubscribe replies to /unsubscribe <network>...
func (c *Commands) Unsubscribe(ctx context.Context, recipient int64, args []string) string {
	networks := cleanArgs(args)
	if len(networks) == 0 {
		return "Usage: /unsubscribe <network1> <network2> ..."
	}
	removed, err := c.subs.Unsubscribe(ctx, recipient, networks)
	if err != nil {
		c.logger.Error().Err(err).Int64("recipient", recipient).Msg("unsubscribe failed")
		return "Could not save your subscription, please try again later."
	}
	if len(removed) == 0 {
		return "You were not subscribed to any of those networks."
	}
	return fmt.Sprintf("Unsubscribed from: %s", strings.Join(removed, ", "))
}

// List replies to /list.
func (c *Commands) List(recipient int64) string {
	networks := c.subs.Networks(recipient)
	if len(networks) == 0 {
		return "You are not subscribed to any networks."
	}
	return fmt.Sprintf("You are subscribed to: %s", strings.Join(networks, ", "))
}

// ListUpgrades replies to /listupgrades.
func (c *Commands) ListUpgrades(recipient int64) string {
	if len(c.subs.Networks(recipient)) == 0 {
		return "You haven't subscribed to any networks yet. Use /subscribe to add networks."
	}
	now := c.now()
	return alerting.RenderUpcoming(c.upcoming.ListUpcoming(recipient, now), now)
}

// Test replies to /test.
func (c *Commands) Test(recipient int64) string {
	c.logger.Info().Int64("recipient", recipient).Msg("test alert requested")
	return alerting.RenderTest(c.subs.Networks(recipient))
}

func cleanArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		for _, part := range strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ' ' }) {
			if n := upgrade.NormalizeNetwork(part); n != "" {
				out = append(out, n)
			}
		}
	}
	return out
}
