package caster

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultDiscoveryInterval = 60 * time.Minute
	defaultDiscoveryTimeout  = 5 * time.Second
)

type Config struct {
	DiscoveryInterval time.Duration `yaml:"discovery-interval,omitempty"`
	DiscoveryTimeout  time.Duration `yaml:"discovery-timeout,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.DiscoveryInterval, util.PrefixConfig(prefix, "discovery-interval"), defaultDiscoveryInterval,
		"How often the device cache is refreshed from mDNS discovery.")
	f.DurationVar(&cfg.DiscoveryTimeout, util.PrefixConfig(prefix, "discovery-timeout"), defaultDiscoveryTimeout,
		"How long one discovery pass listens for devices.")
}
