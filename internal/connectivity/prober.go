package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultProbeURL      = "https://generativelanguage.googleapis.com/"
	DefaultProbeInterval = 15 * time.Second
	probeTimeout         = 5 * time.Second
)

// Prober is a Monitor that periodically checks reachability of a URL.
// Any HTTP response counts as online; only transport failures count as offline.
type Prober struct {
	*hub
	url        string
	interval   time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProber creates a Prober. It starts offline until the first probe.
func NewProber(url string, interval time.Duration) *Prober {
	if url == "" {
		url = DefaultProbeURL
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{
		hub:        newHub(false),
		url:        url,
		interval:   interval,
		httpClient: &http.Client{Timeout: probeTimeout},
		logger:     slog.Default().With("component", "connectivity"),
	}
}

// Run probes immediately and then every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) error {
	p.logger.Info("connectivity prober started", "url", p.url, "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.Probe(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info("connectivity prober stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Probe performs a single check and updates the state. A check cut short by
// ctx leaves the state unchanged.
func (p *Prober) Probe(ctx context.Context) bool {
	if ctx.Err() != nil {
		return p.Online()
	}
	err := p.check(ctx)
	if ctx.Err() != nil {
		return p.Online()
	}
	online := err == nil
	if p.set(online) {
		if online {
			p.logger.Info("connectivity restored")
		} else {
			p.logger.Warn("connectivity lost", "error", err)
		}
	}
	return online
}

func (p *Prober) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("creating probe request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
