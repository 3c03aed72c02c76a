package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestEVMHeightsFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_blockNumber" {
			t.Errorf("unexpected method %s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x10",
		})
	}))
	defer srv.Close()

	heights := NewEVMHeights(EVMHeightOptions{
		Endpoints: map[string]string{"Evmos": srv.URL},
		Timeout:   time.Second,
	}, zerolog.Nop())
	defer heights.Close()

	if !heights.Enabled() {
		t.Fatal("fetcher with an endpoint should be enabled")
	}
	height, err := heights.FetchHeight(context.Background(), "evmos")
	if err != nil {
		t.Fatalf("fetch height: %v", err)
	}
	if height != 16 {
		t.Fatalf("expected height 16, got %d", height)
	}
}

func TestEVMHeightsNoEndpoint(t *testing.T) {
	heights := NewEVMHeights(EVMHeightOptions{}, zerolog.Nop())
	if heights.Enabled() {
		t.Fatal("fetcher without endpoints should be disabled")
	}
	if _, err := heights.FetchHeight(context.Background(), "cosmos"); !errors.Is(err, ErrNoEndpoint) {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}
