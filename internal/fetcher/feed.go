package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"upgrade-alerts/internal/upgrade"
)

const maxFeedBytes = 8 << 20

// FeedErrorKind classifies why a feed fetch produced nothing.
type FeedErrorKind string

const (
	FeedTransport FeedErrorKind = "transport"
	FeedStatus    FeedErrorKind = "status"
	FeedDecode    FeedErrorKind = "decode"
)

// FeedError is a soft failure: the poll treats it as an empty feed and retries next tick.
type FeedError struct {
	Kind   FeedErrorKind
	Status int
	Err    error
}

func (e *FeedError) Error() string {
	if e.Kind == FeedStatus {
		return fmt.Sprintf("upgrade feed %s error (%d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("upgrade feed %s error: %v", e.Kind, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// FeedOptions parameterise the upgrade feed client.
type FeedOptions struct {
	URL       string
	Timeout   time.Duration
	UserAgent string
}

// Feed fetches the chain upgrade schedule over HTTP.
type Feed struct {
	opts   FeedOptions
	logger zerolog.Logger
	client *http.Client
	url    string
}

// NewFeed constructs a feed client. The timeout bounds every fetch.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	url := strings.TrimSpace(opts.URL)
	if url == "" {
		url = "https://polkachu.com/api/v2/chain_upgrades"
	}

	return &Feed{
		opts:   opts,
		logger: logger.With().Str("component", "upgrade_feed").Logger(),
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

// FetchUpgrades retrieves the feed. A failure of the whole document is returned as a *FeedError
// with a nil slice; a record that cannot be decoded is logged and skipped.
func (f *Feed) FetchUpgrades(ctx context.Context) ([]upgrade.RawUpgrade, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FeedError{Kind: FeedTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "upgradewatcher/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FeedError{Kind: FeedTransport, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &FeedError{Kind: FeedTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FeedError{Kind: FeedStatus, Status: resp.StatusCode, Err: fmt.Errorf("%s", snippet(payload))}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(payload, &elems); err != nil {
		return nil, &FeedError{Kind: FeedDecode, Err: err}
	}

	records := make([]upgrade.RawUpgrade, 0, len(elems))
	dropped := 0
	for i, elem := range elems {
		var rec upgrade.RawUpgrade
		if err := json.Unmarshal(elem, &rec); err != nil {
			dropped++
			f.logger.Warn().Err(err).Int("index", i).Str("record", snippet(elem)).Msg("skipping undecodable feed record")
			continue
		}
		records = append(records, rec)
	}

	f.logger.Debug().Int("records", len(records)).Int("dropped", dropped).Msg("upgrade feed fetched")
	return records, nil
}

func snippet(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return "empty body"
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

var _ UpgradeFetcher = (*Feed)(nil)
