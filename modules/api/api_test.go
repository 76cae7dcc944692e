package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/zachfi/castwatch/modules/caster"
	"github.com/zachfi/castwatch/pkg/nowplaying"
	"github.com/zachfi/castwatch/pkg/store"
)

type recordingPool struct {
	started  []string
	stopped  []string
	metadata map[string]*nowplaying.Entry
}

func (p *recordingPool) StartMonitoring(url string) { p.started = append(p.started, url) }
func (p *recordingPool) StopMonitoring(url string)  { p.stopped = append(p.stopped, url) }
func (p *recordingPool) Metadata(url string) *nowplaying.Entry {
	return p.metadata[url]
}

type fakeControl struct {
	names     map[string]string
	devices   []caster.Device
	statuses  map[string]caster.Status
	played    map[string]string
	stopped   []string
	skipped   []string
	playErr   error
	volumeSet map[string]float32
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		names:     map[string]string{"living_room": "uuid-1"},
		devices:   []caster.Device{{UUID: "uuid-1", Name: "Living Room", NormalizedName: "living_room"}},
		statuses:  map[string]caster.Status{},
		played:    map[string]string{},
		volumeSet: map[string]float32{},
	}
}

func (f *fakeControl) Resolve(identifier string) string {
	if uuid, ok := f.names[identifier]; ok {
		return uuid
	}
	return identifier
}

func (f *fakeControl) Devices(_ context.Context, _ bool) ([]caster.Device, error) {
	return f.devices, nil
}

func (f *fakeControl) DeviceStatus(_ context.Context, uuid string) caster.Status {
	return f.statuses[uuid]
}

func (f *fakeControl) PlayURL(_ context.Context, uuid, mediaURL string) error {
	if f.playErr != nil {
		return f.playErr
	}
	f.played[uuid] = mediaURL
	return nil
}

func (f *fakeControl) Play(string) error  { return nil }
func (f *fakeControl) Pause(string) error { return nil }
func (f *fakeControl) Next(uuid string) error {
	f.skipped = append(f.skipped, "next:"+uuid)
	return nil
}
func (f *fakeControl) Previous(uuid string) error {
	f.skipped = append(f.skipped, "previous:"+uuid)
	return nil
}
func (f *fakeControl) Stop(uuid string) error {
	f.stopped = append(f.stopped, uuid)
	return nil
}
func (f *fakeControl) SetVolume(uuid string, level float32) error {
	f.volumeSet[uuid] = level
	return nil
}
func (f *fakeControl) ToggleMute(string) error { return nil }

type testHarness struct {
	router  *mux.Router
	store   *store.Memory
	control *fakeControl
	icy     *recordingPool
	bbc     *recordingPool
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		store:   store.NewMemory(),
		control: newFakeControl(),
		icy:     &recordingPool{metadata: map[string]*nowplaying.Entry{}},
		bbc:     &recordingPool{metadata: map[string]*nowplaying.Entry{}},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(logger, h.store, h.control, h.icy, h.bbc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h.router = mux.NewRouter()
	a.RegisterRoutes(h.router)
	return h
}

func (h *testHarness) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestRadioPlayStartsMonitoring(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	const url = "http://ice6.somafm.com/groovesalad-256-mp3"
	rec, body := h.do(t, http.MethodPost, "/api/radio/play", map[string]string{
		"device": "living_room",
		"url":    url,
		"name":   "Groove Salad",
	})

	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("play failed: code=%d body=%v", rec.Code, body)
	}

	if h.control.played["uuid-1"] != url {
		t.Errorf("played = %v, want %q cast to uuid-1", h.control.played, url)
	}
	if len(h.icy.started) != 1 || h.icy.started[0] != url {
		t.Errorf("icy starts = %v, want the stream url", h.icy.started)
	}
	if len(h.bbc.started) != 0 {
		t.Errorf("bbc starts = %v, want none for an icy url", h.bbc.started)
	}

	stream, _ := h.store.DeviceStream(ctx, "uuid-1")
	if stream != url {
		t.Errorf("device stream = %q, want %q", stream, url)
	}
	last, _ := h.store.LastSelectedDevice(ctx)
	if last != "living_room" {
		t.Errorf("last selected device = %q, want living_room", last)
	}
}

func TestRadioPlayRoutesBBCStreams(t *testing.T) {
	h := newTestHarness(t)

	const url = "http://lstn.lv/bbcradio.m3u8?station=bbc_radio_two"
	_, body := h.do(t, http.MethodPost, "/api/radio/play", map[string]string{
		"device": "living_room",
		"url":    url,
	})

	if body["success"] != true {
		t.Fatalf("play failed: %v", body)
	}
	if len(h.bbc.started) != 1 || h.bbc.started[0] != url {
		t.Errorf("bbc starts = %v, want the stream url", h.bbc.started)
	}
	if len(h.icy.started) != 0 {
		t.Errorf("icy starts = %v, want none for a bbc url", h.icy.started)
	}
}

func TestRadioPlayStopsPreviousStream(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	const oldURL = "http://stream.example/old"
	_ = h.store.SetDeviceStream(ctx, "uuid-1", oldURL)

	_, body := h.do(t, http.MethodPost, "/api/radio/play", map[string]string{
		"device": "living_room",
		"url":    "http://stream.example/new",
	})
	if body["success"] != true {
		t.Fatalf("play failed: %v", body)
	}

	// The old stream's monitors are torn down on both pools.
	if len(h.icy.stopped) != 1 || h.icy.stopped[0] != oldURL {
		t.Errorf("icy stops = %v, want the old url", h.icy.stopped)
	}
	if len(h.bbc.stopped) != 1 || h.bbc.stopped[0] != oldURL {
		t.Errorf("bbc stops = %v, want the old url", h.bbc.stopped)
	}

	stream, _ := h.store.DeviceStream(ctx, "uuid-1")
	if stream != "http://stream.example/new" {
		t.Errorf("device stream = %q, want the new url", stream)
	}
}

func TestRadioStopClearsTracking(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	const url = "http://stream.example/ice"
	_ = h.store.SetDeviceStream(ctx, "uuid-1", url)

	_, body := h.do(t, http.MethodPost, "/api/radio/stop", map[string]string{"device": "living_room"})
	if body["success"] != true {
		t.Fatalf("stop failed: %v", body)
	}

	if len(h.icy.stopped) != 1 || h.icy.stopped[0] != url {
		t.Errorf("icy stops = %v, want the tracked url", h.icy.stopped)
	}
	if len(h.bbc.stopped) != 1 || h.bbc.stopped[0] != url {
		t.Errorf("bbc stops = %v, want the tracked url", h.bbc.stopped)
	}
	if len(h.control.stopped) != 1 || h.control.stopped[0] != "uuid-1" {
		t.Errorf("device stops = %v, want uuid-1", h.control.stopped)
	}

	stream, _ := h.store.DeviceStream(ctx, "uuid-1")
	if stream != "" {
		t.Errorf("device stream = %q, want cleared", stream)
	}
}

func TestDeviceMetadataStates(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	// No mapping at all.
	rec, body := h.do(t, http.MethodGet, "/api/device/living_room/metadata", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200 even with no mapping", rec.Code)
	}
	if body["success"] != false || body["error"] != "no stream playing on device" {
		t.Errorf("body = %v, want the no-stream report", body)
	}

	// Mapping exists but no entry yet.
	const url = "http://stream.example/ice"
	_ = h.store.SetDeviceStream(ctx, "uuid-1", url)

	rec, body = h.do(t, http.MethodGet, "/api/device/living_room/metadata", nil)
	if rec.Code != http.StatusOK || body["error"] != "no metadata available yet" {
		t.Errorf("code=%d body=%v, want the no-metadata report", rec.Code, body)
	}

	// Entry present.
	h.icy.metadata[url] = &nowplaying.Entry{
		Track:     nowplaying.Track{Artist: "Artist", Title: "Title", Raw: "Artist - Title"},
		Timestamp: time.Now(),
	}

	_, body = h.do(t, http.MethodGet, "/api/device/living_room/metadata", nil)
	if body["success"] != true {
		t.Fatalf("body = %v, want success with metadata", body)
	}
	metadata, ok := body["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("metadata missing from body %v", body)
	}
	if metadata["artist"] != "Artist" || metadata["title"] != "Title" {
		t.Errorf("metadata = %v, want artist/title", metadata)
	}
}

func TestStationCRUD(t *testing.T) {
	h := newTestHarness(t)

	_, body := h.do(t, http.MethodPost, "/api/radio/stations", map[string]string{
		"name": "Groove Salad",
		"url":  "http://ice6.somafm.com/groovesalad-256-mp3",
	})
	if body["success"] != true {
		t.Fatalf("create failed: %v", body)
	}
	station := body["station"].(map[string]any)
	id, _ := station["id"].(string)
	if id == "" {
		t.Fatal("created station has no id")
	}

	_, body = h.do(t, http.MethodGet, "/api/radio/stations", nil)
	stations := body["stations"].([]any)
	if len(stations) != 1 {
		t.Fatalf("stations = %v, want one", stations)
	}

	_, body = h.do(t, http.MethodPut, "/api/radio/stations/"+id, map[string]string{
		"name": "Groove Salad Classic",
		"url":  "http://ice6.somafm.com/gsclassic-128-mp3",
	})
	if body["success"] != true {
		t.Fatalf("update failed: %v", body)
	}

	got, _ := h.store.Station(context.Background(), id)
	if got == nil || got.Name != "Groove Salad Classic" {
		t.Errorf("station after update = %+v", got)
	}

	rec, _ := h.do(t, http.MethodDelete, "/api/radio/stations/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete code = %d", rec.Code)
	}

	_, body = h.do(t, http.MethodGet, "/api/radio/stations", nil)
	if stations := body["stations"].([]any); len(stations) != 0 {
		t.Errorf("stations after delete = %v, want none", stations)
	}
}

func TestDeviceVolume(t *testing.T) {
	h := newTestHarness(t)

	_, body := h.do(t, http.MethodPost, "/api/device/living_room/volume", map[string]float32{"volume": 0.4})
	if body["success"] != true {
		t.Fatalf("volume failed: %v", body)
	}
	if got := h.control.volumeSet["uuid-1"]; got != 0.4 {
		t.Errorf("volume = %v, want 0.4", got)
	}

	rec, _ := h.do(t, http.MethodPost, "/api/device/living_room/volume", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400 for a missing body", rec.Code)
	}
}

func TestDeviceNextPrevious(t *testing.T) {
	h := newTestHarness(t)

	_, body := h.do(t, http.MethodPost, "/api/device/living_room/next", nil)
	if body["success"] != true {
		t.Fatalf("next failed: %v", body)
	}
	_, body = h.do(t, http.MethodPost, "/api/device/living_room/previous", nil)
	if body["success"] != true {
		t.Fatalf("previous failed: %v", body)
	}

	want := []string{"next:uuid-1", "previous:uuid-1"}
	if len(h.control.skipped) != 2 || h.control.skipped[0] != want[0] || h.control.skipped[1] != want[1] {
		t.Errorf("skips = %v, want %v", h.control.skipped, want)
	}
}

func TestLastDevice(t *testing.T) {
	h := newTestHarness(t)
	_ = h.store.SetLastSelectedDevice(context.Background(), "living_room")

	_, body := h.do(t, http.MethodGet, "/api/radio/last-device", nil)
	if body["success"] != true || body["device"] != "living_room" {
		t.Errorf("body = %v, want the saved device", body)
	}
}
