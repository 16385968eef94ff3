package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tinyland-inc/beamcast/pkg/logger"
)

// RemoteConfig holds the remote blacklist endpoint configuration.
type RemoteConfig struct {
	// URL serves the blacklist as JSON: {"blacklist": ["peer", ...]}.
	URL string `json:"url"`
	// Key, when set, is sent as X-Beamcast-Key on every fetch.
	Key string `json:"key,omitempty"`
	// RefreshInterval between fetches. Zero means refresh once at startup.
	RefreshInterval time.Duration `json:"-"`
}

// Remote fetches the blacklist from an HTTP endpoint and caches it. Between
// refreshes it serves the last successful fetch, so a flapping endpoint
// degrades to stale policy instead of an empty one.
type Remote struct {
	config     RemoteConfig
	httpClient *http.Client

	static  Static
	blocked map[string]bool
	setCh   chan map[string]bool
	getCh   chan chan map[string]bool
	done    chan struct{}
	once    sync.Once
}

// NewRemote validates the endpoint URL. The static seed is merged into every
// fetched set, so config-file entries stay blacklisted regardless of what
// the endpoint serves.
func NewRemote(cfg RemoteConfig, seed Static) (*Remote, error) {
	if _, err := url.Parse(cfg.URL); err != nil || cfg.URL == "" {
		return nil, fmt.Errorf("policy: invalid remote blacklist URL %q", cfg.URL)
	}
	r := &Remote{
		config:     cfg,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		static:     seed,
		blocked:    mergeBlocked(seed, nil),
		setCh:      make(chan map[string]bool),
		getCh:      make(chan chan map[string]bool),
		done:       make(chan struct{}),
	}
	go r.serve()
	return r, nil
}

// serve owns the cached set; reads and writes funnel through channels so
// Blacklisted never races a refresh.
func (r *Remote) serve() {
	for {
		select {
		case next := <-r.setCh:
			r.blocked = next
		case reply := <-r.getCh:
			reply <- r.blocked
		case <-r.done:
			return
		}
	}
}

func (r *Remote) Blacklisted() map[string]bool {
	reply := make(chan map[string]bool)
	select {
	case r.getCh <- reply:
		return <-reply
	case <-r.done:
		return mergeBlocked(r.static, nil)
	}
}

// Refresh fetches the blacklist once.
func (r *Remote) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.URL, nil)
	if err != nil {
		return err
	}
	if r.config.Key != "" {
		req.Header.Set("X-Beamcast-Key", r.config.Key)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetching blacklist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching blacklist: status %d", resp.StatusCode)
	}

	var body struct {
		Blacklist []string `json:"blacklist"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding blacklist: %w", err)
	}

	select {
	case r.setCh <- mergeBlocked(r.static, body.Blacklist):
	case <-r.done:
	}

	logger.DebugCF("policy", "Blacklist refreshed", map[string]any{"entries": len(body.Blacklist)})
	return nil
}

// Run refreshes on the configured interval until ctx is done. Fetch failures
// are logged; the cached set stays in effect.
func (r *Remote) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		logger.WarnCF("policy", "Blacklist refresh failed", map[string]any{"error": err.Error()})
	}
	if r.config.RefreshInterval <= 0 {
		return
	}

	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				logger.WarnCF("policy", "Blacklist refresh failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// Close stops the cache goroutine.
func (r *Remote) Close() {
	r.once.Do(func() { close(r.done) })
}

func mergeBlocked(seed Static, fetched []string) map[string]bool {
	out := make(map[string]bool, len(seed)+len(fetched))
	for id := range seed {
		out[id] = true
	}
	for _, id := range fetched {
		if id != "" {
			out[id] = true
		}
	}
	return out
}
