package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mtx      sync.Mutex
	stations map[string]Station
	state    map[string]string
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		stations: make(map[string]Station),
		state:    make(map[string]string),
	}
}

func (m *Memory) Stations(_ context.Context) ([]Station, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	stations := make([]Station, 0, len(m.stations))
	for _, s := range m.stations {
		stations = append(stations, s)
	}
	sort.Slice(stations, func(i, j int) bool {
		return strings.ToLower(stations[i].Name) < strings.ToLower(stations[j].Name)
	})
	return stations, nil
}

func (m *Memory) Station(_ context.Context, id string) (*Station, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	s, ok := m.stations[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) PutStation(_ context.Context, s Station) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.stations[s.ID] = s
	return nil
}

func (m *Memory) DeleteStation(_ context.Context, id string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	delete(m.stations, id)
	return nil
}

func (m *Memory) LastSelectedDevice(_ context.Context) (string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.state[lastSelectedDeviceKey], nil
}

func (m *Memory) SetLastSelectedDevice(_ context.Context, device string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.state[lastSelectedDeviceKey] = device
	return nil
}

func (m *Memory) DeviceStream(_ context.Context, deviceID string) (string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.state[deviceStreamKey(deviceID)], nil
}

func (m *Memory) SetDeviceStream(_ context.Context, deviceID, streamURL string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.state[deviceStreamKey(deviceID)] = streamURL
	return nil
}

func (m *Memory) ClearDeviceStream(_ context.Context, deviceID string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	delete(m.state, deviceStreamKey(deviceID))
	return nil
}

func (m *Memory) DeviceStreams(_ context.Context) (map[string]string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	mappings := make(map[string]string)
	for k, v := range m.state {
		if device, ok := strings.CutPrefix(k, deviceStreamPrefix); ok {
			mappings[device] = v
		}
	}
	return mappings, nil
}
