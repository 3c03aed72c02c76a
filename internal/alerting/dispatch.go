package alerting

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// RecipientResolver returns the recipients subscribed to a network.
type RecipientResolver interface {
	Recipients(network string) []int64
}

// Report summarises one fan-out.
type Report struct {
	Network    string
	Recipients int
	Sent       int
	Failed     int
}

// Dispatcher fans a rendered message out to every subscriber of a network.
type Dispatcher struct {
	transport   Transport
	resolver    RecipientResolver
	concurrency int
	logger      zerolog.Logger
}

// NewDispatcher wires a transport to a recipient resolver. concurrency bounds in-flight sends.
func NewDispatcher(transport Transport, resolver RecipientResolver, concurrency int, logger zerolog.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		transport:   transport,
		resolver:    resolver,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Notify sends text to each subscriber of network. A failed recipient is logged and counted;
// the others are still attempted.
func (d *Dispatcher) Notify(ctx context.Context, network, text string) Report {
	recipients := d.resolver.Recipients(network)
	report := Report{Network: network, Recipients: len(recipients)}
	if len(recipients) == 0 {
		d.logger.Debug().Str("network", network).Msg("no subscribers")
		return report
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, d.concurrency)
	)
	for _, recipient := range recipients {
		wg.Add(1)
		sem <- struct{}{}
		go func(recipient int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := d.transport.SendText(ctx, recipient, text)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				d.logger.Error().Err(err).Str("network", network).Int64("recipient", recipient).Msg("send failed")
				return
			}
			report.Sent++
		}(recipient)
	}
	wg.Wait()

	d.logger.Info().Str("network", network).Int("sent", report.Sent).Int("failed", report.Failed).Msg("notification dispatched")
	return report
}
