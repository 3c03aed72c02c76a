package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"upgrade-alerts/internal/alerting"
	"upgrade-alerts/internal/upgrade"
)

// SimulateAlert 为指定网络渲染一次阈值告警并发送给单个接收方。
// 优先使用实时 feed 中的升级数据，缺失时使用占位升级。
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if err := a.Config.ValidateTransport(); err != nil {
		return err
	}
	if opts.Recipient == 0 {
		return errors.New("--recipient 未配置，无法发送模拟告警")
	}

	threshold := upgrade.TwoHoursBefore
	if s := strings.TrimSpace(opts.Threshold); s != "" {
		th, ok := upgrade.ParseThreshold(s)
		if !ok {
			return fmt.Errorf("unknown threshold %q", s)
		}
		threshold = th
	}

	now := time.Now().UTC()
	network := upgrade.NormalizeNetwork(opts.Network)
	if network == "" {
		network = "test-chain"
	}

	u, found := a.lookupUpgrade(ctx, network)
	if !found {
		u = upgrade.Upgrade{
			Network:       network,
			Version:       "v1.0.0-test",
			EstimatedTime: now.Add(time.Duration(threshold.Hours() * float64(time.Hour))),
		}
	}

	ev := upgrade.AlertEvent{
		ID:        uuid.NewString(),
		Network:   network,
		Threshold: threshold,
		Upgrade:   u,
		FiredAt:   now,
	}
	text := alerting.RenderAlert(ev, now, nil)

	if err := a.newTransport().SendText(ctx, opts.Recipient, text); err != nil {
		return fmt.Errorf("send simulated alert: %w", err)
	}
	a.Logger.Info().Int64("recipient", opts.Recipient).Str("network", network).
		Str("threshold", threshold.Key()).Bool("live_data", found).Msg("simulated alert sent")
	return nil
}

func (a *App) lookupUpgrade(ctx context.Context, network string) (upgrade.Upgrade, bool) {
	candidates, err := a.fetchCandidates(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("feed 不可用，使用占位升级模拟告警")
		return upgrade.Upgrade{}, false
	}
	for _, u := range candidates {
		if u.Network == network {
			return u, true
		}
	}
	return upgrade.Upgrade{}, false
}
