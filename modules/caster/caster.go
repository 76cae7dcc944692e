// Package caster discovers cast devices on the LAN and exposes playback
// control and status over them. Discovery results are cached and refreshed
// on a timer; the reaper and api modules consume the cache through narrow
// interfaces so they never touch the cast protocol directly.
package caster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/grafana/dskit/services"
	"github.com/vishen/go-chromecast/application"
	castdns "github.com/vishen/go-chromecast/dns"
)

var module = "caster"

const defaultContentType = "audio/mpeg"

type Caster struct {
	services.Service

	cfg    *Config
	logger *slog.Logger

	mtx        sync.Mutex
	devices    []Device
	apps       map[string]*application.Application
	nameToUUID map[string]string
}

func New(cfg Config, logger *slog.Logger) (*Caster, error) {
	if cfg.DiscoveryInterval == 0 {
		cfg.DiscoveryInterval = defaultDiscoveryInterval
	}
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = defaultDiscoveryTimeout
	}

	c := &Caster{
		cfg:        &cfg,
		logger:     logger.With("module", module),
		apps:       make(map[string]*application.Application),
		nameToUUID: make(map[string]string),
	}

	c.Service = services.NewTimerService(cfg.DiscoveryInterval, c.starting, c.refresh, c.stopping)

	return c, nil
}

func (c *Caster) starting(ctx context.Context) error {
	// First discovery is best effort; devices may also appear on later
	// refreshes or an explicit Devices(refresh=true).
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("initial device discovery failed", "err", err)
	}
	return nil
}

func (c *Caster) stopping(_ error) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for uuid, app := range c.apps {
		if err := app.Close(false); err != nil {
			c.logger.Debug("error closing device connection", "uuid", uuid, "err", err)
		}
	}
	c.apps = make(map[string]*application.Application)

	return nil
}

// NormalizeDeviceName lowercases a device name and replaces spaces so it
// can be used as a URL-safe alias.
func NormalizeDeviceName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func (c *Caster) refresh(ctx context.Context) error {
	discoveryCtx, cancel := context.WithTimeout(ctx, c.cfg.DiscoveryTimeout)
	defer cancel()

	entries, err := castdns.DiscoverCastDNSEntries(discoveryCtx, nil)
	if err != nil {
		return fmt.Errorf("mdns discovery: %w", err)
	}

	devices := []Device{}
	apps := make(map[string]*application.Application)
	nameToUUID := make(map[string]string)

	for entry := range entries {
		uuid := entry.UUID
		if uuid == "" {
			continue
		}

		app := application.NewApplication()
		if err := app.Start(entry.GetAddr(), entry.GetPort()); err != nil {
			c.logger.Warn("could not connect to device", "name", entry.DeviceName, "err", err)
			continue
		}

		normalized := NormalizeDeviceName(entry.DeviceName)
		devices = append(devices, Device{
			UUID:           uuid,
			Name:           entry.DeviceName,
			NormalizedName: normalized,
			Model:          entry.Device,
			Addr:           entry.GetAddr(),
			Port:           entry.GetPort(),
		})
		apps[uuid] = app
		nameToUUID[normalized] = uuid
	}

	c.mtx.Lock()
	old := c.apps
	c.devices = devices
	c.apps = apps
	c.nameToUUID = nameToUUID
	c.mtx.Unlock()

	for _, app := range old {
		_ = app.Close(false)
	}

	c.logger.Info("device discovery completed", "devices", len(devices))
	return nil
}

// Devices returns the cached device list, forcing a new discovery pass
// first when refresh is set.
func (c *Caster) Devices(ctx context.Context, refresh bool) ([]Device, error) {
	if refresh {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]Device(nil), c.devices...), nil
}

// Resolve maps a device identifier, either a UUID or a normalized name,
// to a UUID. Unknown identifiers pass through unchanged and fail on use.
func (c *Caster) Resolve(identifier string) string {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, ok := c.apps[identifier]; ok {
		return identifier
	}
	if uuid, ok := c.nameToUUID[NormalizeDeviceName(identifier)]; ok {
		return uuid
	}
	return identifier
}

func (c *Caster) app(uuid string) *application.Application {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.apps[uuid]
}

// DeviceStatus reports the playback state of a device. A device that is
// unknown or fails to answer is reported as not found, which the reaper
// treats as stale.
func (c *Caster) DeviceStatus(_ context.Context, uuid string) Status {
	app := c.app(uuid)
	if app == nil {
		return Status{Found: false, PlayerState: PlayerStateUnknown}
	}

	if err := app.Update(); err != nil {
		c.logger.Debug("device status update failed", "uuid", uuid, "err", err)
		return Status{Found: false, PlayerState: PlayerStateUnknown}
	}

	castApp, castMedia, castVolume := app.Status()

	status := Status{
		Found:       true,
		Idle:        castApp == nil || castApp.IsIdleScreen,
		PlayerState: PlayerStateUnknown,
	}
	if castApp != nil {
		status.AppName = castApp.DisplayName
	}
	if castMedia != nil {
		status.PlayerState = castMedia.PlayerState
		status.Title = castMedia.Media.Metadata.Title
	}
	if castVolume != nil {
		status.VolumeLevel = castVolume.Level
		status.VolumeMuted = castVolume.Muted
	}

	return status
}

// PlayURL loads a media URL on the device.
func (c *Caster) PlayURL(_ context.Context, uuid, mediaURL string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}

	return app.Load(mediaURL, 0, defaultContentType, false, true, false)
}

// Play resumes playback.
func (c *Caster) Play(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.Unpause()
}

// Pause pauses playback.
func (c *Caster) Pause(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.Pause()
}

// Next skips forward to the next item in the device's queue.
func (c *Caster) Next(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.Next()
}

// Previous skips back to the previous item in the device's queue.
func (c *Caster) Previous(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.Previous()
}

// Stop stops the current media session.
func (c *Caster) Stop(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.StopMedia()
}

// SetVolume sets the device volume, 0.0 to 1.0.
func (c *Caster) SetVolume(uuid string, level float32) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}
	return app.SetVolume(level)
}

// ToggleMute flips the device mute state.
func (c *Caster) ToggleMute(uuid string) error {
	app := c.app(uuid)
	if app == nil {
		return fmt.Errorf("device %s not found", uuid)
	}

	if err := app.Update(); err != nil {
		return err
	}
	_, _, castVolume := app.Status()
	muted := castVolume != nil && castVolume.Muted

	return app.SetMuted(!muted)
}
