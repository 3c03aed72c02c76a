package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"upgrade-alerts/internal/upgrade"
)

// ErrNoEndpoint means no JSON-RPC endpoint is configured for the network.
var ErrNoEndpoint = errors.New("no rpc endpoint configured for network")

// EVMHeightOptions parameterise the EVM JSON-RPC height fetcher.
type EVMHeightOptions struct {
	Endpoints map[string]string
	Timeout   time.Duration
}

// EVMHeights reads the latest block number of EVM-compatible networks (evmos, kava, ...).
type EVMHeights struct {
	opts      EVMHeightOptions
	endpoints map[string]string
	logger    zerolog.Logger

	clientMux sync.Mutex
	clients   map[string]*ethclient.Client
}

// NewEVMHeights builds a height fetcher; networks without an endpoint yield ErrNoEndpoint.
func NewEVMHeights(opts EVMHeightOptions, logger zerolog.Logger) *EVMHeights {
	endpoints := make(map[string]string, len(opts.Endpoints))
	for network, url := range opts.Endpoints {
		if url = strings.TrimSpace(url); url != "" {
			endpoints[upgrade.NormalizeNetwork(network)] = url
		}
	}
	return &EVMHeights{
		opts:      opts,
		endpoints: endpoints,
		logger:    logger.With().Str("component", "height_fetcher").Logger(),
		clients:   make(map[string]*ethclient.Client),
	}
}

// Enabled reports whether any endpoint is configured.
func (h *EVMHeights) Enabled() bool {
	return len(h.endpoints) > 0
}

// FetchHeight returns the latest block number for network.
func (h *EVMHeights) FetchHeight(ctx context.Context, network string) (uint64, error) {
	network = upgrade.NormalizeNetwork(network)
	url, ok := h.endpoints[network]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoEndpoint, network)
	}

	timeout := h.opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := h.getClient(ctx, network, url)
	if err != nil {
		return 0, err
	}

	height, err := client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number %s: %w", network, err)
	}
	return height, nil
}

func (h *EVMHeights) getClient(ctx context.Context, network, url string) (*ethclient.Client, error) {
	h.clientMux.Lock()
	defer h.clientMux.Unlock()

	if client, ok := h.clients[network]; ok {
		return client, nil
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", network, err)
	}
	h.clients[network] = client
	return client, nil
}

// Close releases every dialled client.
func (h *EVMHeights) Close() {
	h.clientMux.Lock()
	defer h.clientMux.Unlock()
	for network, client := range h.clients {
		client.Close()
		delete(h.clients, network)
	}
}

var _ HeightFetcher = (*EVMHeights)(nil)
