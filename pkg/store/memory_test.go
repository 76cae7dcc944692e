package store

import (
	"context"
	"testing"
)

func TestMemoryStations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, s := range []Station{
		{ID: "1", Name: "zeta fm"},
		{ID: "2", Name: "Alpha Radio"},
		{ID: "3", Name: "mellow"},
	} {
		if err := m.PutStation(ctx, s); err != nil {
			t.Fatalf("PutStation() error = %v", err)
		}
	}

	stations, err := m.Stations(ctx)
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	if len(stations) != 3 {
		t.Fatalf("Stations() returned %d, want 3", len(stations))
	}
	// Sorted by name, case-insensitively.
	if stations[0].Name != "Alpha Radio" || stations[1].Name != "mellow" || stations[2].Name != "zeta fm" {
		t.Errorf("station order = %v", stations)
	}

	s, err := m.Station(ctx, "2")
	if err != nil {
		t.Fatalf("Station() error = %v", err)
	}
	if s == nil || s.Name != "Alpha Radio" {
		t.Errorf("Station(2) = %+v", s)
	}

	missing, err := m.Station(ctx, "nope")
	if err != nil {
		t.Fatalf("Station() error = %v", err)
	}
	if missing != nil {
		t.Errorf("Station(nope) = %+v, want nil", missing)
	}

	if err := m.DeleteStation(ctx, "2"); err != nil {
		t.Fatalf("DeleteStation() error = %v", err)
	}
	stations, _ = m.Stations(ctx)
	if len(stations) != 2 {
		t.Errorf("Stations() after delete = %d, want 2", len(stations))
	}
}

func TestMemoryDeviceStreams(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.SetDeviceStream(ctx, "uuid-1", "http://stream.example/one"); err != nil {
		t.Fatalf("SetDeviceStream() error = %v", err)
	}
	if err := m.SetDeviceStream(ctx, "uuid-2", "http://stream.example/two"); err != nil {
		t.Fatalf("SetDeviceStream() error = %v", err)
	}
	// Unrelated state must not leak into the mapping listing.
	if err := m.SetLastSelectedDevice(ctx, "uuid-1"); err != nil {
		t.Fatalf("SetLastSelectedDevice() error = %v", err)
	}

	stream, err := m.DeviceStream(ctx, "uuid-1")
	if err != nil {
		t.Fatalf("DeviceStream() error = %v", err)
	}
	if stream != "http://stream.example/one" {
		t.Errorf("DeviceStream(uuid-1) = %q", stream)
	}

	if stream, _ := m.DeviceStream(ctx, "unknown"); stream != "" {
		t.Errorf("DeviceStream(unknown) = %q, want empty", stream)
	}

	all, err := m.DeviceStreams(ctx)
	if err != nil {
		t.Fatalf("DeviceStreams() error = %v", err)
	}
	if len(all) != 2 || all["uuid-1"] != "http://stream.example/one" || all["uuid-2"] != "http://stream.example/two" {
		t.Errorf("DeviceStreams() = %v", all)
	}

	if err := m.ClearDeviceStream(ctx, "uuid-1"); err != nil {
		t.Fatalf("ClearDeviceStream() error = %v", err)
	}
	all, _ = m.DeviceStreams(ctx)
	if len(all) != 1 {
		t.Errorf("DeviceStreams() after clear = %v", all)
	}

	// Clearing again is a no-op.
	if err := m.ClearDeviceStream(ctx, "uuid-1"); err != nil {
		t.Errorf("ClearDeviceStream() second call error = %v", err)
	}
}

func TestMemoryLastSelectedDevice(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	device, err := m.LastSelectedDevice(ctx)
	if err != nil {
		t.Fatalf("LastSelectedDevice() error = %v", err)
	}
	if device != "" {
		t.Errorf("LastSelectedDevice() = %q, want empty before any selection", device)
	}

	if err := m.SetLastSelectedDevice(ctx, "kitchen"); err != nil {
		t.Fatalf("SetLastSelectedDevice() error = %v", err)
	}
	device, _ = m.LastSelectedDevice(ctx)
	if device != "kitchen" {
		t.Errorf("LastSelectedDevice() = %q, want kitchen", device)
	}
}
