// Package debugstats periodically logs system and coordinator statistics.
package debugstats

import (
	"context"
	"fmt"
	"github.com/lefinal/pairs-server/coordinator"
	"github.com/lefinal/pairs-server/portal"
	"github.com/lefinal/pairs-server/services"
	"go.uber.org/zap"
	"runtime"
	"time"
)

type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
	// IncludeStack describes whether to include the stack of all goroutines.
	IncludeStack bool
}

// CoordinatorStats provides coordinator.Stats.
type CoordinatorStats interface {
	Stats() coordinator.Stats
}

// ConnectionCounter provides the number of open connections.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Stats is a snapshot of server statistics.
type Stats struct {
	NumGoroutine  int               `json:"num_goroutine"`
	MemoryUsageMB uint64            `json:"memory_usage_mb"`
	Connections   int               `json:"connections"`
	Coordinator   coordinator.Stats `json:"coordinator"`
}

type debugStatsService struct {
	logger      *zap.Logger
	config      Config
	coordinator CoordinatorStats
	connections ConnectionCounter
	// portal is used for publishing stats. If nil, stats are only logged.
	portal portal.Portal
}

// NewService creates the debug stats service. The portal is optional.
func NewService(logger *zap.Logger, config Config, coordinator CoordinatorStats, connections ConnectionCounter,
	portal portal.Portal) services.Service {
	return &debugStatsService{
		logger:      logger,
		config:      config,
		coordinator: coordinator,
		connections: connections,
		portal:      portal,
	}
}

func (s *debugStatsService) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %gs", s.config.Interval.Seconds()))
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := s.collect()
			s.log(stats)
			if s.portal != nil {
				s.portal.Publish(ctx, portal.TopicServerStats, stats)
			}
		}
	}
}

// collect creates a Stats snapshot.
func (s *debugStatsService) collect() Stats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return Stats{
		NumGoroutine:  runtime.NumGoroutine(),
		MemoryUsageMB: memStats.Sys / 1000 / 1000,
		Connections:   s.connections.ConnectionCount(),
		Coordinator:   s.coordinator.Stats(),
	}
}

// log logs the given Stats and optionally the current stack.
func (s *debugStatsService) log(stats Stats) {
	s.logger.Debug("system stats",
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("num_goroutine", stats.NumGoroutine),
		zap.Uint64("memory_usage_mb", stats.MemoryUsageMB),
		zap.Int("connections", stats.Connections),
		zap.Int("rooms", stats.Coordinator.Rooms),
		zap.Any("rooms_by_phase", stats.Coordinator.RoomsByPhase),
		zap.Int("players_in_room", stats.Coordinator.PlayersInRoom),
		zap.Int("queued", stats.Coordinator.Queued))
	if !s.config.IncludeStack {
		return
	}
	buf := make([]byte, 1<<16)
	stackSize := runtime.Stack(buf, true)
	s.logger.Debug(fmt.Sprintf(`
----------BEGIN OF STACK----------
%s
----------END OF STACK------------
`, string(buf[0:stackSize])))
}
