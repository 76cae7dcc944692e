// Package store persists the station catalog and small pieces of radio
// state: the last selected device and which stream each device is playing.
// The DynamoDB backend is the production store; the memory backend serves
// tests and local runs without a database.
package store

import (
	"context"
	"flag"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
)

// Station is one catalog entry.
type Station struct {
	ID      string `json:"id" dynamodbav:"id"`
	Name    string `json:"name" dynamodbav:"name"`
	URL     string `json:"url" dynamodbav:"url"`
	IconURL string `json:"icon_url" dynamodbav:"icon_url"`
}

// Store is the persistence surface consumed by the api and reaper
// modules. Implementations do no caching of their own.
type Store interface {
	Stations(ctx context.Context) ([]Station, error)
	Station(ctx context.Context, id string) (*Station, error)
	PutStation(ctx context.Context, s Station) error
	DeleteStation(ctx context.Context, id string) error

	LastSelectedDevice(ctx context.Context) (string, error)
	SetLastSelectedDevice(ctx context.Context, device string) error

	// DeviceStream returns the stream URL believed to be playing on a
	// device, or "" when none is tracked.
	DeviceStream(ctx context.Context, deviceID string) (string, error)
	SetDeviceStream(ctx context.Context, deviceID, streamURL string) error
	ClearDeviceStream(ctx context.Context, deviceID string) error

	// DeviceStreams returns every tracked device->stream mapping.
	DeviceStreams(ctx context.Context) (map[string]string, error)
}

type Config struct {
	Backend string       `yaml:"backend,omitempty"`
	Dynamo  DynamoConfig `yaml:"dynamodb,omitempty"`
}

type DynamoConfig struct {
	Endpoint      string `yaml:"endpoint,omitempty"`
	Region        string `yaml:"region,omitempty"`
	StateTable    string `yaml:"state_table,omitempty"`
	StationsTable string `yaml:"stations_table,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, util.PrefixConfig(prefix, "backend"), BackendMemory, "Storage backend to use (memory or dynamodb)")
	f.StringVar(&cfg.Dynamo.Endpoint, util.PrefixConfig(prefix, "dynamodb.endpoint"), "", "DynamoDB endpoint override, eg: http://localhost:8001")
	f.StringVar(&cfg.Dynamo.Region, util.PrefixConfig(prefix, "dynamodb.region"), "us-east-1", "DynamoDB region")
	f.StringVar(&cfg.Dynamo.StateTable, util.PrefixConfig(prefix, "dynamodb.state-table"), "castwatch_state", "Table holding key/value radio state")
	f.StringVar(&cfg.Dynamo.StationsTable, util.PrefixConfig(prefix, "dynamodb.stations-table"), "castwatch_stations", "Table holding the station catalog")
}
