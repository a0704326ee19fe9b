// Package metrics reports ingestion counters over StatsD. Metrics are fire
// and forget: a down collector never fails the pipeline.
package metrics

import (
	"fmt"

	statsd "github.com/cactus/go-statsd-client/v5/statsd"

	"github.com/nexbill/matrix-ingest/pkg/logger"
)

// Sink counts processed emails and quotes per matrix format. The zero value
// and a nil *StatsD both discard everything, so tests and the command-line
// tools need no collector.
type Sink interface {
	// EmailReceived counts one matrix email, as soon as its headers parse.
	EmailReceived()

	// QuotesExtracted counts quotes produced by the named parser.
	QuotesExtracted(parserName string, count int)
}

// StatsD is a Sink backed by a StatsD collector.
type StatsD struct {
	client statsd.Statter
}

// NewStatsD connects to the collector at host:port over UDP.
func NewStatsD(host string, port int) (*StatsD, error) {
	client, err := statsd.NewClientWithConfig(&statsd.ClientConfig{
		Address: fmt.Sprintf("%s:%d", host, port),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}
	return &StatsD{client: client}, nil
}

// Close releases the client's socket.
func (s *StatsD) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *StatsD) count(name string, value int64) {
	if s == nil || s.client == nil {
		return
	}
	if err := s.client.Inc(name, value, 1.0); err != nil {
		logger.Log.Warn().Err(err).Str("metric", name).Msg("failed to send metric")
	}
}

func (s *StatsD) EmailReceived() {
	s.count("quote.email", 1)
}

func (s *StatsD) QuotesExtracted(parserName string, count int) {
	s.count("quote.matrix."+parserName, int64(count))
}

var _ Sink = (*StatsD)(nil)
