// Package reaper runs the periodic health check that keeps metadata
// monitoring converged with actual playback. Each sweep cross-references
// the persisted device->stream mappings against live device state and
// enforces a ceiling on how long any one stream stays monitored. Monitors
// and mappings can go stale independently; the sweep drives both back to
// stopped/absent in either order.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zachfi/castwatch/modules/caster"
)

var module = "reaper"

// Pool is the monitor-pool surface the reaper needs. Both protocol pools
// are swept; stopping a URL a pool never tracked is a no-op.
type Pool interface {
	StopMonitoring(url string)
	ActiveDurations() map[string]time.Duration
}

// DeviceControl answers playback-state queries for a device.
type DeviceControl interface {
	DeviceStatus(ctx context.Context, uuid string) caster.Status
}

// Mappings is the persisted device->stream association table.
type Mappings interface {
	DeviceStreams(ctx context.Context) (map[string]string, error)
	ClearDeviceStream(ctx context.Context, deviceID string) error
}

type Reaper struct {
	services.Service

	cfg    *Config
	logger *slog.Logger

	control  DeviceControl
	mappings Mappings
	pools    []Pool

	metrics *reaperMetrics
}

func New(cfg Config, logger *slog.Logger, reg prometheus.Registerer, control DeviceControl, mappings Mappings, pools ...Pool) (*Reaper, error) {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxMonitorAge == 0 {
		cfg.MaxMonitorAge = defaultMaxMonitorAge
	}

	r := &Reaper{
		cfg:      &cfg,
		logger:   logger.With("module", module),
		control:  control,
		mappings: mappings,
		pools:    pools,
		metrics:  newReaperMetrics(reg),
	}

	r.Service = services.NewTimerService(cfg.Interval, nil, r.iteration, nil)

	return r, nil
}

// iteration runs one sweep. It always returns nil: a failed sweep is
// logged and retried on the next tick, never fatal to the service.
func (r *Reaper) iteration(ctx context.Context) error {
	r.Sweep(ctx)
	return nil
}

// Sweep performs one full health check pass.
func (r *Reaper) Sweep(ctx context.Context) {
	r.metrics.sweeps.Inc()
	r.logger.Debug("health check sweep starting")

	r.sweepDeviceStreams(ctx)
	r.sweepMonitorTimeouts(ctx)

	r.logger.Debug("health check sweep completed")
}

func (r *Reaper) sweepDeviceStreams(ctx context.Context) {
	mappings, err := r.mappings.DeviceStreams(ctx)
	if err != nil {
		r.logger.Error("unable to list device streams", "err", err)
		return
	}

	for device, streamURL := range mappings {
		r.checkDeviceStream(ctx, device, streamURL)
	}
}

func (r *Reaper) checkDeviceStream(ctx context.Context, device, streamURL string) {
	status := r.control.DeviceStatus(ctx, device)

	if !status.Found {
		r.cleanupStream(ctx, device, streamURL, "device not found")
		return
	}

	if status.Idle || status.PlayerState == caster.PlayerStateIdle || status.PlayerState == caster.PlayerStateUnknown {
		r.cleanupStream(ctx, device, streamURL, "device idle")
	}
}

// cleanupStream stops monitoring on every pool and drops the mapping.
// Stopping is harmless on whichever pool wasn't tracking the stream.
func (r *Reaper) cleanupStream(ctx context.Context, device, streamURL, reason string) {
	r.logger.Info("cleaning up stale stream", "device", device, "url", streamURL, "reason", reason)

	for _, pool := range r.pools {
		pool.StopMonitoring(streamURL)
	}

	if err := r.mappings.ClearDeviceStream(ctx, device); err != nil {
		r.logger.Error("unable to clear device stream", "device", device, "err", err)
	}

	r.metrics.staleCleanups.Inc()
}

func (r *Reaper) sweepMonitorTimeouts(ctx context.Context) {
	for _, pool := range r.pools {
		for streamURL, age := range pool.ActiveDurations() {
			if age < r.cfg.MaxMonitorAge {
				continue
			}

			r.logger.Info("monitor exceeded ceiling, stopping", "url", streamURL, "age", age)
			pool.StopMonitoring(streamURL)
			r.metrics.timeoutStops.Inc()

			// The staleness pass usually catches the mapping first, but
			// not necessarily; clear any mapping still pointing here.
			r.clearMappingsForStream(ctx, streamURL)
		}
	}
}

func (r *Reaper) clearMappingsForStream(ctx context.Context, streamURL string) {
	mappings, err := r.mappings.DeviceStreams(ctx)
	if err != nil {
		r.logger.Error("unable to list device streams", "err", err)
		return
	}

	for device, mapped := range mappings {
		if mapped != streamURL {
			continue
		}
		if err := r.mappings.ClearDeviceStream(ctx, device); err != nil {
			r.logger.Error("unable to clear device stream", "device", device, "err", err)
		}
	}
}

type reaperMetrics struct {
	sweeps        prometheus.Counter
	staleCleanups prometheus.Counter
	timeoutStops  prometheus.Counter
}

func newReaperMetrics(reg prometheus.Registerer) *reaperMetrics {
	factory := promauto.With(reg)

	return &reaperMetrics{
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "reaper_sweeps_total",
			Help:      "Health check sweeps completed.",
		}),
		staleCleanups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "reaper_stale_cleanups_total",
			Help:      "Device streams cleaned up because the device was gone or idle.",
		}),
		timeoutStops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "castwatch",
			Name:      "reaper_timeout_stops_total",
			Help:      "Monitors stopped for exceeding the monitoring ceiling.",
		}),
	}
}
