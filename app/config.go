package app

import (
	"flag"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"

	"github.com/zachfi/zkit/pkg/tracing"

	"github.com/zachfi/castwatch/modules/caster"
	"github.com/zachfi/castwatch/modules/monitor"
	"github.com/zachfi/castwatch/modules/reaper"
	"github.com/zachfi/castwatch/pkg/bbc"
	"github.com/zachfi/castwatch/pkg/icy"
	"github.com/zachfi/castwatch/pkg/store"
)

type Config struct {
	Target  string         `yaml:"target"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
	Server  server.Config  `yaml:"server,omitempty"`
	Store   store.Config   `yaml:"store,omitempty"`
	Caster  caster.Config  `yaml:"caster,omitempty"`
	Monitor monitor.Config `yaml:"monitor,omitempty"`
	ICY     icy.Config     `yaml:"icy,omitempty"`
	BBC     bbc.Config     `yaml:"bbc,omitempty"`
	Reaper  reaper.Config  `yaml:"reaper,omitempty"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", 3030, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", 9090, "gRPC server listen port.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Store.RegisterFlagsAndApplyDefaults("store", f)
	c.Caster.RegisterFlagsAndApplyDefaults("caster", f)
	c.Monitor.RegisterFlagsAndApplyDefaults("monitor", f)
	c.ICY.RegisterFlagsAndApplyDefaults("icy", f)
	c.BBC.RegisterFlagsAndApplyDefaults("bbc", f)
	c.Reaper.RegisterFlagsAndApplyDefaults("reaper", f)
}
