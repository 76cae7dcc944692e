package monitor

import (
	"flag"
	"time"

	"github.com/zachfi/zkit/pkg/util"
)

const (
	defaultPollInterval = 15 * time.Second
	defaultPollTimeout  = 10 * time.Second
	defaultStopWait     = 5 * time.Second
)

type Config struct {
	PollInterval time.Duration `yaml:"poll-interval,omitempty"` // time between polls of one stream
	PollTimeout  time.Duration `yaml:"poll-timeout,omitempty"`  // ceiling on a single poll, also bounds stop latency
	StopWait     time.Duration `yaml:"stop-wait,omitempty"`     // how long shutdown waits for workers to drain
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.DurationVar(&cfg.PollInterval, util.PrefixConfig(prefix, "poll-interval"), defaultPollInterval,
		"Time between metadata polls for a monitored stream.")
	f.DurationVar(&cfg.PollTimeout, util.PrefixConfig(prefix, "poll-timeout"), defaultPollTimeout,
		"Timeout for a single metadata poll. A stop request takes effect within this bound.")
	f.DurationVar(&cfg.StopWait, util.PrefixConfig(prefix, "stop-wait"), defaultStopWait,
		"How long shutdown waits for monitor workers to exit before proceeding.")
}
