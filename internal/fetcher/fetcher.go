package fetcher

import (
	"context"

	"upgrade-alerts/internal/upgrade"
)

// UpgradeFetcher retrieves the raw upgrade schedule feed.
type UpgradeFetcher interface {
	FetchUpgrades(ctx context.Context) ([]upgrade.RawUpgrade, error)
}

// HeightFetcher retrieves the current block height of a network.
type HeightFetcher interface {
	FetchHeight(ctx context.Context, network string) (uint64, error)
}
