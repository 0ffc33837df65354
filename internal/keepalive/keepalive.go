// Package keepalive periodically requests the service's own public URL so the
// hosting platform does not idle the instance.
package keepalive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/illegalcall/inquiry-relay/internal/metrics"
)

const (
	requestTimeout = 30 * time.Second

	// DefaultInterval replaces a non-positive interval.
	DefaultInterval = 10 * time.Minute
)

// Pinger issues GET requests against a fixed URL on an interval.
type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewPinger(url string, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Pinger {
	if interval <= 0 {
		logger.Warn("Invalid keepalive interval, using default", "interval", interval, "default", DefaultInterval)
		interval = DefaultInterval
	}
	return &Pinger{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger.With("component", "keepalive"),
		metrics:  m,
	}
}

// Run pings once immediately and then on every tick until ctx is cancelled.
func (p *Pinger) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting keepalive", "url", p.url, "interval", p.interval)
	p.pingAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Keepalive shutting down")
			return
		case <-ticker.C:
			p.pingAndLog(ctx)
		}
	}
}

// Ping sends one request and returns the response status code.
func (p *Pinger) Ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create ping request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send ping request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

func (p *Pinger) pingAndLog(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Keepalive ping panicked", "panic", r)
			p.metrics.Pings.WithLabelValues("error").Inc()
		}
	}()

	status, err := p.Ping(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error("Ping error", "error", err)
		p.metrics.Pings.WithLabelValues("error").Inc()
		return
	}
	p.logger.Info("Pinged server", "status", status)
	p.metrics.Pings.WithLabelValues(strconv.Itoa(status)).Inc()
}
