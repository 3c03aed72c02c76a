package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramTransportSuccess(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	transport := NewTelegramTransport("token", srv.URL, time.Second, zerolog.Nop())
	if err := transport.SendText(context.Background(), 42, "hello"); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}
	if received["chat_id"] != float64(42) {
		t.Fatalf("chat_id = %#v", received["chat_id"])
	}
	if received["text"] != "hello" {
		t.Fatalf("text = %#v", received["text"])
	}
}

func TestTelegramTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "bot was blocked by the user"})
	}))
	defer srv.Close()

	transport := NewTelegramTransport("token", srv.URL, time.Second, zerolog.Nop())
	err := transport.SendText(context.Background(), 1, "hello")
	if err == nil {
		t.Fatal("403 should be an error")
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("error should carry the api description: %v", err)
	}
}

func TestTelegramTransportOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	transport := NewTelegramTransport("token", srv.URL, time.Second, zerolog.Nop())
	if err := transport.SendText(context.Background(), 1, "hello"); err == nil {
		t.Fatal("ok=false should be an error")
	}
}

func TestTelegramTransportSplitsLongText(t *testing.T) {
	var (
		mu    sync.Mutex
		parts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		parts = append(parts, body["text"].(string))
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	line := strings.Repeat("x", 99) + "\n"
	text := strings.Repeat(line, 100)

	transport := NewTelegramTransport("token", srv.URL, time.Second, zerolog.Nop())
	if err := transport.SendText(context.Background(), 1, text); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(parts))
	}
}
