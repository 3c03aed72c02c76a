package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"upgrade-alerts/internal/upgrade"
)

// Export renders the current schedule as CSV and/or a PNG bar chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	candidates, err := a.fetchCandidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		a.Logger.Info().Msg("feed returned no upgrades to export")
		return nil
	}

	now := time.Now().UTC()
	a.Logger.Info().Int("upgrades", len(candidates)).Msg("exporting upgrade schedule")

	if opts.CSVPath != "" {
		if err := writeUpgradesCSV(opts.CSVPath, candidates, now); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeUpgradesPNG(opts.PNGPath, candidates, now); err != nil {
			return err
		}
	}

	return nil
}

func writeUpgradesCSV(path string, upgrades []upgrade.Upgrade, now time.Time) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"network", "chain_name", "version", "block", "estimated_time", "hours_until", "due_thresholds"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, u := range upgrades {
		estimated, hours := "", ""
		if h, ok := u.HoursUntil(now); ok {
			estimated = u.EstimatedTime.UTC().Format(time.RFC3339)
			hours = decimal.NewFromFloat(h).StringFixed(2)
		}
		block := ""
		if u.Block != nil {
			block = u.BlockString()
		}
		record := []string{
			u.Network,
			u.ChainName,
			u.Version,
			block,
			estimated,
			hours,
			strings.Join(dueThresholds(u, now).Keys(), ";"),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeUpgradesPNG charts hours until each upcoming upgrade with a known time.
func writeUpgradesPNG(path string, upgrades []upgrade.Upgrade, now time.Time) error {
	type point struct {
		network string
		hours   float64
	}
	points := make([]point, 0, len(upgrades))
	for _, u := range upgrades {
		if h, ok := u.HoursUntil(now); ok && h >= 0 {
			points = append(points, point{network: u.Network, hours: h})
		}
	}
	if len(points) == 0 {
		return errors.New("no upcoming upgrades with a known time to chart")
	}
	sort.Slice(points, func(i, j int) bool { return points[i].hours < points[j].hours })

	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(points))
	for _, p := range points {
		bars = append(bars, chart.Value{
			Label: p.network,
			Value: decimal.NewFromFloat(p.hours).Round(1).InexactFloat64(),
		})
	}

	graph := chart.BarChart{
		Title:    "Hours until upgrade",
		Width:    1280,
		Height:   720,
		BarWidth: 40,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0fh")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
