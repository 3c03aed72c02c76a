package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"upgrade-alerts/internal/config"
	"upgrade-alerts/internal/storage"
)

type fakeAPI struct {
	srv  *httptest.Server
	sent []map[string]any
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{}
	soon := time.Now().UTC().Add(30 * time.Hour).Format(time.RFC3339)
	later := time.Now().UTC().Add(100 * time.Hour).Format(time.RFC3339)

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"network": "cosmos", "chain_name": "Cosmos Hub", "node_version": "v15.0.0", "block": 19000000, "estimated_upgrade_time": later},
			{"network": "Osmosis", "chain_name": "Osmosis", "node_version": "v25.0.0", "block": "21000000", "estimated_upgrade_time": soon},
			{"network": "juno", "node_version": "v22.0.0", "block": nil, "estimated_upgrade_time": nil},
		})
	})
	mux.HandleFunc("/bottoken/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.sent = append(api.sent, body)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func testApp(t *testing.T, api *fakeAPI) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Feed:     config.FeedConfig{URL: api.srv.URL + "/feed", RequestTimeout: time.Second},
		Telegram: config.TelegramConfig{BotToken: "token", APIBase: api.srv.URL, SendTimeout: time.Second},
		Storage:  config.StorageConfig{Driver: "file", Path: filepath.Join(t.TempDir(), "subs.json")},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestShow(t *testing.T) {
	a, out := testApp(t, newFakeAPI(t))
	require.NoError(t, a.Show(context.Background(), ShowOptions{}))

	text := out.String()
	assert.Contains(t, text, "Network")
	assert.Contains(t, text, "osmosis")
	assert.Contains(t, text, "2_days_before")
	assert.Contains(t, text, "unknown")

	out.Reset()
	require.NoError(t, a.Show(context.Background(), ShowOptions{Network: "Cosmos"}))
	assert.NotContains(t, out.String(), "osmosis")
}

func TestExportCSVAndPNG(t *testing.T) {
	a, _ := testApp(t, newFakeAPI(t))
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "upgrades.csv")
	pngPath := filepath.Join(dir, "out", "upgrades.png")

	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "network", rows[0][0])
	assert.Equal(t, []string{"juno", "", "v22.0.0", "", "", "", ""}, rows[3])
	assert.Equal(t, "21000000", rows[2][3])

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := testApp(t, newFakeAPI(t))
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestSimulateAlertUsesLiveUpgrade(t *testing.T) {
	api := newFakeAPI(t)
	a, _ := testApp(t, api)

	require.NoError(t, a.SimulateAlert(context.Background(), SimulateOptions{Recipient: 42, Network: "osmosis", Threshold: "1_day_before"}))
	require.Len(t, api.sent, 1)
	assert.Equal(t, float64(42), api.sent[0]["chat_id"])
	text := api.sent[0]["text"].(string)
	assert.Contains(t, text, "[24 HOUR ALERT]")
	assert.Contains(t, text, "Version: v25.0.0")

	require.NoError(t, a.SimulateAlert(context.Background(), SimulateOptions{Recipient: 42, Network: "unknownchain"}))
	assert.Contains(t, api.sent[1]["text"].(string), "v1.0.0-test")

	assert.Error(t, a.SimulateAlert(context.Background(), SimulateOptions{Recipient: 42, Threshold: "bogus"}))
	err := a.SimulateAlert(context.Background(), SimulateOptions{Network: "osmosis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recipient")
	assert.Len(t, api.sent, 2)
}

func TestSimulateAlertRequiresToken(t *testing.T) {
	a, _ := testApp(t, newFakeAPI(t))
	a.Config.Telegram.BotToken = ""
	err := a.SimulateAlert(context.Background(), SimulateOptions{Recipient: 1})
	assert.True(t, errors.Is(err, config.ErrMissingBotToken))
}

func TestSubscriptions(t *testing.T) {
	a, out := testApp(t, newFakeAPI(t))
	require.NoError(t, a.Subscriptions(context.Background()))
	assert.Contains(t, out.String(), "no subscriptions found")

	store, err := storage.NewFileStore(a.Config.Storage.Path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), storage.Subscriptions{7: {"osmosis", "cosmos"}, -3: {"juno"}}))

	out.Reset()
	require.NoError(t, a.Subscriptions(context.Background()))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "-3"))
	assert.Contains(t, lines[2], "cosmos, osmosis")
}

func TestRunRequiresToken(t *testing.T) {
	a, _ := testApp(t, newFakeAPI(t))
	a.Config.Telegram.BotToken = ""
	assert.ErrorIs(t, a.Run(context.Background()), config.ErrMissingBotToken)
}
