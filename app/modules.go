package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zachfi/castwatch/modules/api"
	"github.com/zachfi/castwatch/modules/caster"
	"github.com/zachfi/castwatch/modules/monitor"
	"github.com/zachfi/castwatch/modules/reaper"
	"github.com/zachfi/castwatch/pkg/bbc"
	"github.com/zachfi/castwatch/pkg/icy"
	"github.com/zachfi/castwatch/pkg/store"
)

const (
	Server string = "server"

	Store      string = "store"
	Caster     string = "caster"
	ICYMonitor string = "icy-monitor"
	BBCMonitor string = "bbc-monitor"
	Reaper     string = "reaper"
	API        string = "api"

	All string = "all"
)

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(kitlog.NewLogfmtLogger(os.Stderr))
	mm.RegisterModule(Server, a.initServer, modules.UserInvisibleModule)

	mm.RegisterModule(Store, a.initStore, modules.UserInvisibleModule)
	mm.RegisterModule(Caster, a.initCaster)
	mm.RegisterModule(ICYMonitor, a.initICYMonitor)
	mm.RegisterModule(BBCMonitor, a.initBBCMonitor)
	mm.RegisterModule(Reaper, a.initReaper)
	mm.RegisterModule(API, a.initAPI)

	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		Reaper: {Store, Caster, ICYMonitor, BBCMonitor},
		API:    {Server, Store, Caster, ICYMonitor, BBCMonitor},

		All: {Reaper, API},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm

	return nil
}

func (a *App) initStore() (services.Service, error) {
	switch a.cfg.Store.Backend {
	case store.BackendDynamoDB:
		s, err := store.NewDynamo(context.Background(), a.cfg.Store.Dynamo)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create dynamodb store")
		}
		a.store = s
	case store.BackendMemory, "":
		a.store = store.NewMemory()
	default:
		return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
	}

	return nil, nil
}

func (a *App) initCaster() (services.Service, error) {
	c, err := caster.New(a.cfg.Caster, a.logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init caster")
	}

	a.caster = c
	return c, nil
}

func (a *App) initICYMonitor() (services.Service, error) {
	p, err := monitor.New("icy", a.cfg.Monitor, a.logger, prometheus.DefaultRegisterer, icy.NewPoller(a.cfg.ICY))
	if err != nil {
		return nil, errors.Wrap(err, "unable to init icy monitor")
	}

	a.icyPool = p
	return p, nil
}

func (a *App) initBBCMonitor() (services.Service, error) {
	p, err := monitor.New("bbc", a.cfg.Monitor, a.logger, prometheus.DefaultRegisterer, bbc.NewPoller(a.cfg.BBC))
	if err != nil {
		return nil, errors.Wrap(err, "unable to init bbc monitor")
	}

	a.bbcPool = p
	return p, nil
}

func (a *App) initReaper() (services.Service, error) {
	r, err := reaper.New(a.cfg.Reaper, a.logger, prometheus.DefaultRegisterer, a.caster, a.store, a.icyPool, a.bbcPool)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init reaper")
	}

	return r, nil
}

func (a *App) initAPI() (services.Service, error) {
	apiSvc, err := api.New(a.logger, a.store, a.caster, a.icyPool, a.bbcPool)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init api")
	}

	apiSvc.RegisterRoutes(a.Server.HTTP)

	return apiSvc, nil
}

func (a *App) initServer() (services.Service, error) {
	a.cfg.Server.MetricsNamespace = metricsNamespace
	a.cfg.Server.ExcludeRequestInLog = true
	a.cfg.Server.RegisterInstrumentation = true
	a.cfg.Server.Log = kitlog.NewLogfmtLogger(os.Stderr)

	server, err := server.New(a.cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}

	servicesToWaitFor := func() []services.Service {
		svs := []services.Service(nil)
		for m, s := range a.serviceMap {
			// Server should not wait for itself.
			if m != Server {
				svs = append(svs, s)
			}
		}

		return svs
	}

	a.Server = server

	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			serverDone <- server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return err
			}

			return fmt.Errorf("server stopped unexpectedly")
		}
	}

	stoppingFn := func(_ error) error {
		// wait until all modules are done, and then shutdown server.
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		// shutdown HTTP and gRPC servers (this also unblocks Run)
		server.Shutdown()

		// if not closed yet, wait until server stops.
		<-serverDone
		slog.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn), nil
}
