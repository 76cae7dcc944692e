package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zachfi/castwatch/pkg/store"
)

type response map[string]any

func (a *API) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("unable to write response", "err", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, code int, err error) {
	a.writeJSON(w, code, response{"success": false, "error": err.Error()})
}

func (a *API) handleDevices(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	devices, err := a.control.Devices(r.Context(), refresh)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	a.writeJSON(w, http.StatusOK, response{"success": true, "devices": devices})
}

func (a *API) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	a.writeJSON(w, http.StatusOK, a.control.DeviceStatus(r.Context(), uuid))
}

func (a *API) handleDevicePlay(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	if err := a.control.Play(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDevicePause(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	if err := a.control.Pause(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDeviceNext(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	if err := a.control.Next(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDevicePrevious(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	if err := a.control.Previous(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDeviceStop(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])

	// Playback is going away; monitoring and the mapping go with it.
	a.stopTracking(r.Context(), uuid)

	if err := a.control.Stop(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDeviceVolume(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])

	var req struct {
		Volume float32 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := a.control.SetVolume(uuid, req.Volume); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleDeviceMute(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])
	if err := a.control.ToggleMute(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

// handleDeviceMetadata reports the cached now-playing entry for whatever
// stream is tracked on the device. Metadata queries never fail: no
// mapping and no entry are both reported in the body, not as HTTP errors.
func (a *API) handleDeviceMetadata(w http.ResponseWriter, r *http.Request) {
	uuid := a.control.Resolve(mux.Vars(r)["identifier"])

	streamURL, err := a.store.DeviceStream(r.Context(), uuid)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if streamURL == "" {
		a.writeJSON(w, http.StatusOK, response{"success": false, "error": "no stream playing on device"})
		return
	}

	entry := a.poolFor(streamURL).Metadata(streamURL)
	if entry == nil {
		a.writeJSON(w, http.StatusOK, response{"success": false, "error": "no metadata available yet"})
		return
	}

	a.writeJSON(w, http.StatusOK, response{"success": true, "metadata": entry})
}

func (a *API) handleListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := a.store.Stations(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true, "stations": stations})
}

type stationRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	IconURL string `json:"icon_url"`
}

func (a *API) handleCreateStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	s := store.Station{ID: newStationID(), Name: req.Name, URL: req.URL, IconURL: req.IconURL}
	if err := a.store.PutStation(r.Context(), s); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true, "station": s})
}

func (a *API) handleUpdateStation(w http.ResponseWriter, r *http.Request) {
	var req stationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	s := store.Station{ID: mux.Vars(r)["id"], Name: req.Name, URL: req.URL, IconURL: req.IconURL}
	if err := a.store.PutStation(r.Context(), s); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true, "station": s})
}

func (a *API) handleDeleteStation(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteStation(r.Context(), mux.Vars(r)["id"]); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

// handleRadioPlay starts playback of a stream on a device and begins
// metadata monitoring in the protocol family matching the URL.
func (a *API) handleRadioPlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
		URL    string `json:"url"`
		Name   string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	uuid := a.control.Resolve(req.Device)

	// The device may have been playing a different stream; that
	// stream's monitors are torn down before the new one starts.
	if old, err := a.store.DeviceStream(ctx, uuid); err != nil {
		a.logger.Error("unable to look up device stream", "device", uuid, "err", err)
	} else if old != "" && old != req.URL {
		a.icyPool.StopMonitoring(old)
		a.bbcPool.StopMonitoring(old)
	}

	if err := a.control.PlayURL(ctx, uuid, req.URL); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}

	if err := a.store.SetLastSelectedDevice(ctx, req.Device); err != nil {
		a.logger.Error("unable to save last selected device", "err", err)
	}
	if err := a.store.SetDeviceStream(ctx, uuid, req.URL); err != nil {
		a.logger.Error("unable to save device stream", "device", uuid, "err", err)
	}

	a.poolFor(req.URL).StartMonitoring(req.URL)

	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleRadioStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Device string `json:"device"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	uuid := a.control.Resolve(req.Device)
	a.stopTracking(r.Context(), uuid)

	if err := a.control.Stop(uuid); err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true})
}

func (a *API) handleLastDevice(w http.ResponseWriter, r *http.Request) {
	device, err := a.store.LastSelectedDevice(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err)
		return
	}
	a.writeJSON(w, http.StatusOK, response{"success": true, "device": device})
}
