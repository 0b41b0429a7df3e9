// Package health probes the external collaborators (identity provider,
// DNS provider) so operators can tell a provider outage apart from
// legitimate verification failures. Probe results never gate verification.
package health

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds probe configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
}

// Target is an external collaborator to probe.
type Target struct {
	Name string
	URL  string
}

// StatusRecordFunc is an optional callback for recording probe results.
type StatusRecordFunc func(name string, up bool)

// Checker runs periodic reachability probes against fixed targets.
type Checker struct {
	targets    []Target
	httpClient *http.Client
	cfg        Config
	onStatus   StatusRecordFunc
	mu         sync.Mutex
	down       map[string]bool
	logger     *zap.Logger
}

// New creates a Checker for the given targets.
func New(targets []Target, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}

	return &Checker{
		targets:    targets,
		httpClient: &http.Client{Timeout: cfg.ProbeTimeout},
		cfg:        cfg,
		down:       make(map[string]bool),
		logger:     logger,
	}
}

// SetStatusRecord configures the probe result recording callback.
func (h *Checker) SetStatusRecord(fn StatusRecordFunc) {
	h.onStatus = fn
}

// Start runs the probe loop until quit is signalled.
func (h *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CheckInterval-time.Second)
			h.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll probes every target once.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range h.targets {
		wg.Add(1)
		go func(target Target) {
			defer wg.Done()

			up := h.probe(ctx, target.URL)

			if h.onStatus != nil {
				h.onStatus(target.Name, up)
			}

			h.mu.Lock()
			wasDown := h.down[target.Name]
			h.down[target.Name] = !up
			h.mu.Unlock()

			if up && wasDown {
				h.logger.Info("collaborator reachable again", zap.String("collaborator", target.Name))
			} else if !up && !wasDown {
				h.logger.Warn("collaborator unreachable",
					zap.String("collaborator", target.Name),
					zap.String("url", target.URL),
				)
			}
		}(t)
	}
	wg.Wait()
}

// probe performs a single GET against url. Any HTTP response counts as
// reachable; only transport-level failures count as down.
func (h *Checker) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return true
}
