package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFeedFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"network":"cosmos","chain_name":"Cosmos Hub","node_version":"v15.0.0","block":19000000,"estimated_upgrade_time":"2030-01-03T12:00:00Z"},
			{"network":"osmosis","chain_name":"Osmosis","node_version":"v25","block":null,"estimated_upgrade_time":null}
		]`))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, UserAgent: "test"}, zerolog.Nop())
	records, err := feed.FetchUpgrades(context.Background())
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Network != "cosmos" || !records[0].Block.Valid || records[0].Block.Value != 19000000 {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].Block.Valid || records[1].EstimatedUpgradeTime != nil {
		t.Fatalf("null fields should decode as absent: %+v", records[1])
	}
}

func TestFeedFetchSkipsBadRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"network":"cosmos","node_version":"v15.0.0","block":100,"estimated_upgrade_time":"2030-01-03T12:00:00Z"},
			{"network":"juno","node_version":"v20","block":"TBD","estimated_upgrade_time":"2030-01-04T00:00:00Z"},
			{"network":"akash","node_version":"v1","block":5,"estimated_upgrade_time":1735000000},
			{"network":["not","a","string"],"node_version":"v2"},
			"garbage"
		]`))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	records, err := feed.FetchUpgrades(context.Background())
	if err != nil {
		t.Fatalf("bad records must not fail the feed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 surviving records, got %d: %+v", len(records), records)
	}
	if records[0].Network != "cosmos" || records[0].Block.Value != 100 || records[0].EstimatedUpgradeTime == nil {
		t.Fatalf("good record damaged: %+v", records[0])
	}
	if records[1].Network != "juno" || records[1].Block.Valid {
		t.Fatalf("non-numeric block should decode as unknown: %+v", records[1])
	}
	if records[1].EstimatedUpgradeTime == nil || *records[1].EstimatedUpgradeTime != "2030-01-04T00:00:00Z" {
		t.Fatalf("juno time lost: %+v", records[1])
	}
	if records[2].Network != "akash" || records[2].EstimatedUpgradeTime != nil {
		t.Fatalf("numeric time should decode as unknown: %+v", records[2])
	}
}

func TestFeedFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	records, err := feed.FetchUpgrades(context.Background())
	if records != nil {
		t.Fatalf("records should be nil on failure, got %v", records)
	}
	var feedErr *FeedError
	if !errors.As(err, &feedErr) {
		t.Fatalf("expected *FeedError, got %v", err)
	}
	if feedErr.Kind != FeedStatus || feedErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("unexpected feed error %+v", feedErr)
	}
}

func TestFeedFetchDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	_, err := feed.FetchUpgrades(context.Background())
	var feedErr *FeedError
	if !errors.As(err, &feedErr) || feedErr.Kind != FeedDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestFeedFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	feed := NewFeed(FeedOptions{URL: srv.URL, Timeout: 20 * time.Millisecond}, zerolog.Nop())
	_, err := feed.FetchUpgrades(context.Background())
	var feedErr *FeedError
	if !errors.As(err, &feedErr) || feedErr.Kind != FeedTransport {
		t.Fatalf("expected transport error, got %v", err)
	}
}
