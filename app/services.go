package app

import (
	"context"
	"fmt"
	"github.com/lefinal/pairs-server/coordinator"
	"github.com/lefinal/pairs-server/debugstats"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/portal"
	"github.com/lefinal/pairs-server/resultsvc"
	"github.com/lefinal/pairs-server/services"
	"github.com/lefinal/pairs-server/store"
	"github.com/lefinal/pairs-server/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"time"
)

type appServices map[string]services.Service

// createServices creates the background services. Both portalBase and mall
// are optional and might be nil.
func createServices(appConfig Config, logger *zap.Logger, portalBase portal.Base, mall *store.Mall,
	coord *coordinator.Coordinator, hub *ws.Hub) appServices {
	s := make(appServices)
	var resultPortal, statsPortal portal.Portal
	if portalBase != nil {
		s["portal"] = services.Func(portalBase.Open)
		resultPortal = portalBase.NewPortal("results")
		statsPortal = portalBase.NewPortal("debug-stats")
	}
	// Debug stats service.
	s["debug-stats"] = debugstats.NewService(logger.Named("debug-stats"), debugstats.Config{
		IsEnabled:    appConfig.Log.SystemDebugStatsInterval.Valid,
		Interval:     time.Duration(appConfig.Log.SystemDebugStatsInterval.Int) * time.Minute,
		IncludeStack: appConfig.Log.StdoutLogLevel <= zap.DebugLevel,
	}, coord, hub, statsPortal)
	// Result service.
	var resultStore resultsvc.Store
	if mall != nil {
		resultStore = mall
	}
	s["results"] = resultsvc.NewResultService(logger.Named("results"), coord.Results(), resultStore, resultPortal)
	return s
}

func (s appServices) run(ctx context.Context, logger *zap.Logger) error {
	wg, lifetime := errgroup.WithContext(ctx)
	// Run each.
	for name, serviceToRun := range s {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
