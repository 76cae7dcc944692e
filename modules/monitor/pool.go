// Package monitor runs at most one background polling worker per stream
// URL and publishes normalized results to a shared metadata cache. The
// pool is protocol-agnostic; the wired Poller decides how a stream is
// actually polled. Two pools run in the app, one per protocol family.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/castwatch/pkg/nowplaying"
)

var module = "monitor"

// Poller is the protocol hook for a pool. Prepare extracts whatever
// identifier the protocol needs to poll a stream URL; it runs once at
// start time and a failure prevents the monitor from being created.
// Poll performs one fetch and may return (nil, nil) when the protocol
// has no update this cycle.
type Poller interface {
	Prepare(url string) (target string, err error)
	Poll(ctx context.Context, target string) (*nowplaying.Track, error)
}

type handle struct {
	cancel    context.CancelFunc
	startedAt time.Time
}

// Pool owns the monitor handles and the metadata cache for one protocol
// family. One mutex guards both tables; polling I/O happens outside it.
type Pool struct {
	services.Service

	cfg    *Config
	logger *slog.Logger
	name   string
	poller Poller

	mtx     sync.Mutex
	handles map[string]*handle
	entries map[string]*nowplaying.Entry
	wg      sync.WaitGroup

	metrics *poolMetrics
}

// New creates a pool for one protocol family. The name labels logs and
// metrics so the two families stay distinguishable.
func New(name string, cfg Config, logger *slog.Logger, reg prometheus.Registerer, poller Poller) (*Pool, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.StopWait == 0 {
		cfg.StopWait = defaultStopWait
	}

	p := &Pool{
		cfg:     &cfg,
		logger:  logger.With("module", module, "pool", name),
		name:    name,
		poller:  poller,
		handles: make(map[string]*handle),
		entries: make(map[string]*nowplaying.Entry),
		metrics: newPoolMetrics(reg, name),
	}

	p.Service = services.NewIdleService(nil, p.stopping)

	return p, nil
}

// StartMonitoring launches a polling worker for the URL. It is a no-op
// when the URL is already monitored; at most one worker per URL exists
// in a pool. An identifier-extraction failure is logged and no worker
// is created.
func (p *Pool) StartMonitoring(url string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, ok := p.handles[url]; ok {
		return
	}

	target, err := p.poller.Prepare(url)
	if err != nil {
		p.logger.Error("cannot start monitoring", "url", url, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.handles[url] = &handle{cancel: cancel, startedAt: time.Now()}
	p.metrics.active.Inc()

	p.wg.Add(1)
	go p.worker(ctx, url, target)

	p.logger.Info("started monitoring", "url", url)
}

// StopMonitoring signals the worker for the URL to stop and drops its
// handle. Safe to call repeatedly and for URLs never started. The cached
// entry is retained as a last-known value.
func (p *Pool) StopMonitoring(url string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	h, ok := p.handles[url]
	if !ok {
		return
	}

	h.cancel()
	delete(p.handles, url)
	p.metrics.active.Dec()

	p.logger.Info("stopped monitoring", "url", url)
}

// Metadata returns a copy of the cached entry for the URL, or nil when
// the stream has never produced metadata.
func (p *Pool) Metadata(url string) *nowplaying.Entry {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	e, ok := p.entries[url]
	if !ok {
		return nil
	}

	out := *e
	out.History = append([]nowplaying.Song(nil), e.History...)
	return &out
}

// ActiveDurations reports how long each currently monitored URL has been
// monitored. Consumed by the reaper to enforce the monitoring ceiling.
func (p *Pool) ActiveDurations() map[string]time.Duration {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	now := time.Now()
	durations := make(map[string]time.Duration, len(p.handles))
	for url, h := range p.handles {
		durations[url] = now.Sub(h.startedAt)
	}
	return durations
}

func (p *Pool) worker(ctx context.Context, url, target string) {
	defer p.wg.Done()

	var warnedUnsupported bool

	for {
		p.pollOnce(ctx, url, target, &warnedUnsupported)

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

func (p *Pool) pollOnce(ctx context.Context, url, target string, warnedUnsupported *bool) {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	track, err := p.poller.Poll(pollCtx, target)
	cancel()

	if ctx.Err() != nil {
		// Stopped while the poll was in flight.
		return
	}

	p.metrics.polls.Inc()

	if err != nil {
		if errors.Is(err, nowplaying.ErrUnsupported) {
			if !*warnedUnsupported {
				p.logger.Warn("stream does not support metadata, will keep retrying", "url", url, "err", err)
				*warnedUnsupported = true
			}
			return
		}

		p.metrics.pollErrors.Inc()
		p.logger.Error("metadata poll failed", "url", url, "err", err)
		return
	}

	if track == nil {
		// No update this cycle.
		return
	}

	p.mtx.Lock()
	next, changed := nowplaying.Merge(p.entries[url], *track, time.Now())
	p.entries[url] = &next
	p.mtx.Unlock()

	if changed {
		p.metrics.songChanges.Inc()
		p.logger.Info("song change", "url", url, "artist", track.Artist, "title", track.Title)
	} else {
		p.logger.Debug("metadata refreshed", "url", url)
	}
}

func (p *Pool) stopping(_ error) error {
	p.mtx.Lock()
	for url, h := range p.handles {
		h.cancel()
		delete(p.handles, url)
		p.metrics.active.Dec()
	}
	p.mtx.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.StopWait):
		p.logger.Warn("timed out waiting for monitor workers to exit")
	}

	return nil
}

type poolMetrics struct {
	polls       prometheus.Counter
	pollErrors  prometheus.Counter
	songChanges prometheus.Counter
	active      prometheus.Gauge
}

func newPoolMetrics(reg prometheus.Registerer, pool string) *poolMetrics {
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"pool": pool}, reg))

	return &poolMetrics{
		polls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "metadata_polls_total",
			Help:      "Metadata polls attempted.",
		}),
		pollErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "metadata_poll_errors_total",
			Help:      "Metadata polls that failed.",
		}),
		songChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "metadata_song_changes_total",
			Help:      "Song transitions observed.",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "castwatch",
			Name:      "metadata_active_monitors",
			Help:      "Streams currently monitored.",
		}),
	}
}
