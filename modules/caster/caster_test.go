package caster

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNormalizeDeviceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Living Room", "living_room"},
		{"Kitchen", "kitchen"},
		{"Office Speaker Pair", "office_speaker_pair"},
		{"already_normal", "already_normal"},
	}

	for _, tt := range tests {
		if got := NormalizeDeviceName(tt.in); got != tt.want {
			t.Errorf("NormalizeDeviceName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func newTestCaster(t *testing.T) *Caster {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(Config{}, logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestResolveUnknownPassesThrough(t *testing.T) {
	c := newTestCaster(t)

	// With no devices discovered, identifiers pass through and fail on use.
	if got := c.Resolve("some-uuid"); got != "some-uuid" {
		t.Errorf("Resolve() = %q, want pass-through", got)
	}
	if got := c.Resolve("Living Room"); got != "Living Room" {
		t.Errorf("Resolve() = %q, want pass-through", got)
	}
}

func TestUnknownDeviceOperationsFail(t *testing.T) {
	c := newTestCaster(t)
	ctx := context.Background()

	status := c.DeviceStatus(ctx, "missing")
	if status.Found {
		t.Error("DeviceStatus() reported an unknown device as found")
	}
	if status.PlayerState != PlayerStateUnknown {
		t.Errorf("PlayerState = %q, want %q", status.PlayerState, PlayerStateUnknown)
	}

	if err := c.PlayURL(ctx, "missing", "http://stream.example/ice"); err == nil {
		t.Error("PlayURL() should fail for an unknown device")
	}
	if err := c.Play("missing"); err == nil {
		t.Error("Play() should fail for an unknown device")
	}
	if err := c.Pause("missing"); err == nil {
		t.Error("Pause() should fail for an unknown device")
	}
	if err := c.Next("missing"); err == nil {
		t.Error("Next() should fail for an unknown device")
	}
	if err := c.Previous("missing"); err == nil {
		t.Error("Previous() should fail for an unknown device")
	}
	if err := c.Stop("missing"); err == nil {
		t.Error("Stop() should fail for an unknown device")
	}
	if err := c.SetVolume("missing", 0.5); err == nil {
		t.Error("SetVolume() should fail for an unknown device")
	}
	if err := c.ToggleMute("missing"); err == nil {
		t.Error("ToggleMute() should fail for an unknown device")
	}
}

func TestDevicesReturnsCopy(t *testing.T) {
	c := newTestCaster(t)
	c.devices = []Device{{UUID: "uuid-1", Name: "Living Room", NormalizedName: "living_room"}}

	devices, err := c.Devices(context.Background(), false)
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("Devices() returned %d, want 1", len(devices))
	}

	devices[0].Name = "mutated"
	again, _ := c.Devices(context.Background(), false)
	if again[0].Name != "Living Room" {
		t.Error("Devices() should return a copy of the cached list")
	}
}
