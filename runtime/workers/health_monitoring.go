package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"campus-chat/contract"
)

var _ contract.Worker = (*HealthMonitor)(nil)

// HealthMonitor samples the engine's own process on a ticker and logs
// CPU and memory usage, giving operators a heartbeat without an external
// metrics stack.
type HealthMonitor struct {
	log            *slog.Logger
	metricInterval time.Duration
	sessionCount   func() int
}

func NewHealthMonitor(log *slog.Logger, metricInterval time.Duration, sessionCount func() int) *HealthMonitor {
	return &HealthMonitor{log: log, metricInterval: metricInterval, sessionCount: sessionCount}
}

func (w *HealthMonitor) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitor")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Debug("Could not read CPU usage", "error", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Debug("Could not read memory usage", "error", err)
				continue
			}
			w.log.Info("Engine health",
				"cpu_percent", cpu,
				"ram_percent", ram,
				"open_sessions", w.sessionCount())
		}
	}
}
