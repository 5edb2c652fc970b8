// Package network provides connectivity detection for the sync core.
// Connectivity is observed by probing a reachability endpoint; callers
// subscribe to transitions rather than polling.
package network

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/agrihub/fieldsync/internal/logging"
)

// Prober answers a single reachability question. Implementations must
// be safe for concurrent use.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes connectivity by issuing a HEAD request against a
// reachability URL. Any HTTP response counts as online; only transport
// failures count as offline.
type HTTPProber struct {
	url    string
	client *http.Client
}

// NewHTTPProber creates an HTTPProber for the given URL.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// StatusCallback receives connectivity transitions.
type StatusCallback func(online bool)

// Monitor polls a Prober and notifies subscribers when connectivity
// changes. It starts pessimistic: offline until the first probe says
// otherwise, so a subscriber always sees the offline-to-online edge
// after startup.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *logging.Logger

	mu      sync.RWMutex
	online  bool
	subs    map[int]StatusCallback
	nextSub int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor polling at the given interval.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	return &Monitor{
		prober:   prober,
		interval: interval,
		logger:   logging.Get().WithComponent("network"),
		subs:     make(map[int]StatusCallback),
		stopCh:   make(chan struct{}),
	}
}

// IsOnline returns the last observed connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a callback invoked on every connectivity
// transition. The returned function removes the subscription.
// Callbacks run on the monitor goroutine and must not block.
func (m *Monitor) Subscribe(cb StatusCallback) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = cb
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// CheckNow probes immediately and applies the result, outside the
// polling cadence.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	online := m.prober.Probe(ctx)
	m.setOnline(online)
	return online
}

// Start begins polling. The first probe runs synchronously so callers
// have a real connectivity state when Start returns. Calling Start on
// a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.CheckNow(ctx)

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("Network monitor started", map[string]interface{}{
		"interval": m.interval.String(),
		"online":   m.IsOnline(),
	})
}

// Stop halts polling and waits for the monitor goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("Network monitor stopped", nil)
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// setOnline records a probe result and notifies subscribers on a
// transition.
func (m *Monitor) setOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	callbacks := make([]StatusCallback, 0, len(m.subs))
	for _, cb := range m.subs {
		callbacks = append(callbacks, cb)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})
	for _, cb := range callbacks {
		cb(online)
	}
}
