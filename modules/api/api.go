// Package api exposes the JSON request layer: device discovery and
// control, the station catalog, playback start/stop with metadata
// monitoring lifecycle, and now-playing queries. Handlers stay thin;
// monitoring state lives in the pools and persistence in the store.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/grafana/dskit/services"

	"github.com/zachfi/castwatch/modules/caster"
	"github.com/zachfi/castwatch/pkg/bbc"
	"github.com/zachfi/castwatch/pkg/nowplaying"
	"github.com/zachfi/castwatch/pkg/store"
)

var module = "api"

// DeviceControl is the cast-device surface the handlers use.
type DeviceControl interface {
	Resolve(identifier string) string
	Devices(ctx context.Context, refresh bool) ([]caster.Device, error)
	DeviceStatus(ctx context.Context, uuid string) caster.Status
	PlayURL(ctx context.Context, uuid, mediaURL string) error
	Play(uuid string) error
	Pause(uuid string) error
	Next(uuid string) error
	Previous(uuid string) error
	Stop(uuid string) error
	SetVolume(uuid string, level float32) error
	ToggleMute(uuid string) error
}

// Pool is the monitoring surface the handlers use.
type Pool interface {
	StartMonitoring(url string)
	StopMonitoring(url string)
	Metadata(url string) *nowplaying.Entry
}

type API struct {
	services.Service

	logger *slog.Logger

	store   store.Store
	control DeviceControl
	icyPool Pool
	bbcPool Pool
}

func New(logger *slog.Logger, st store.Store, control DeviceControl, icyPool, bbcPool Pool) (*API, error) {
	a := &API{
		logger:  logger.With("module", module),
		store:   st,
		control: control,
		icyPool: icyPool,
		bbcPool: bbcPool,
	}

	a.Service = services.NewIdleService(nil, nil)

	return a, nil
}

// RegisterRoutes attaches all handlers to the server mux.
func (a *API) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/devices", a.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/device/{identifier}/status", a.handleDeviceStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/device/{identifier}/play", a.handleDevicePlay).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/pause", a.handleDevicePause).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/next", a.handleDeviceNext).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/previous", a.handleDevicePrevious).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/stop", a.handleDeviceStop).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/volume", a.handleDeviceVolume).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/mute", a.handleDeviceMute).Methods(http.MethodPost)
	r.HandleFunc("/api/device/{identifier}/metadata", a.handleDeviceMetadata).Methods(http.MethodGet)

	r.HandleFunc("/api/radio/stations", a.handleListStations).Methods(http.MethodGet)
	r.HandleFunc("/api/radio/stations", a.handleCreateStation).Methods(http.MethodPost)
	r.HandleFunc("/api/radio/stations/{id}", a.handleUpdateStation).Methods(http.MethodPut)
	r.HandleFunc("/api/radio/stations/{id}", a.handleDeleteStation).Methods(http.MethodDelete)

	r.HandleFunc("/api/radio/play", a.handleRadioPlay).Methods(http.MethodPost)
	r.HandleFunc("/api/radio/stop", a.handleRadioStop).Methods(http.MethodPost)
	r.HandleFunc("/api/radio/last-device", a.handleLastDevice).Methods(http.MethodGet)
}

// poolFor selects the protocol family for a stream URL. BBC streams are
// recognized by URL prefix; everything else is polled as ICY.
func (a *API) poolFor(streamURL string) Pool {
	if bbc.IsStream(streamURL) {
		return a.bbcPool
	}
	return a.icyPool
}

// stopTracking tears down monitoring and the persisted mapping for
// whatever stream the device is tracked as playing.
func (a *API) stopTracking(ctx context.Context, uuid string) {
	streamURL, err := a.store.DeviceStream(ctx, uuid)
	if err != nil {
		a.logger.Error("unable to look up device stream", "device", uuid, "err", err)
		return
	}
	if streamURL == "" {
		return
	}

	a.icyPool.StopMonitoring(streamURL)
	a.bbcPool.StopMonitoring(streamURL)

	if err := a.store.ClearDeviceStream(ctx, uuid); err != nil {
		a.logger.Error("unable to clear device stream", "device", uuid, "err", err)
	}
}

func newStationID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
