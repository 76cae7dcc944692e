package reaper

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultInterval      = 60 * time.Second
	defaultMaxMonitorAge = 600 * time.Second
)

type Config struct {
	Interval      time.Duration `yaml:"interval,omitempty"`
	MaxMonitorAge time.Duration `yaml:"max-monitor-age,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.Interval, util.PrefixConfig(prefix, "interval"), defaultInterval,
		"How often the health check sweep runs.")
	f.DurationVar(&cfg.MaxMonitorAge, util.PrefixConfig(prefix, "max-monitor-age"), defaultMaxMonitorAge,
		"Ceiling on how long a stream stays monitored before being reaped.")
}
