// Package cachesweep runs a periodic job, scheduled with gocron, that logs
// chunk-cache occupancy and reclaims stale per-key rendezvous bookkeeping.
package cachesweep

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"cubed/internal/logging"
	"cubed/internal/sysmetrics"
)

// Target is the subset of computeserver.Server the sweep job depends on.
// Declared here (rather than imported as a concrete type) so this package
// has no import-cycle risk and is trivially testable with a fake.
type Target interface {
	CacheOccupancy() (entries int, totalBytes, budgetBytes int64)
	PruneStaleRecords() int
}

// Job wraps a single gocron.Scheduler running one recurring sweep task.
type Job struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates and starts a sweep job that runs every interval against
// target, logging occupancy and process resource usage each tick.
func New(target Target, interval time.Duration, logger *slog.Logger) (*Job, error) {
	logger = logging.Default(logger).With("component", "cache_sweep")

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("cachesweep: create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(sweepOnce, target, logger),
		gocron.WithName("chunk-cache-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("cachesweep: create job: %w", err)
	}

	s.Start()
	logger.Info("cache sweep started", "interval", interval)

	return &Job{scheduler: s, logger: logger}, nil
}

// Stop shuts down the scheduler and waits for any in-flight sweep to
// finish.
func (j *Job) Stop() error {
	return j.scheduler.Shutdown()
}

func sweepOnce(target Target, logger *slog.Logger) {
	entries, totalBytes, budgetBytes := target.CacheOccupancy()
	pruned := target.PruneStaleRecords()

	logger.Info("chunk cache occupancy",
		"entries", entries,
		"total_bytes", totalBytes,
		"budget_bytes", budgetBytes,
		"records_pruned", pruned,
		"process_cpu_percent", sysmetrics.CPUPercent(),
		"process_memory_bytes", sysmetrics.MemoryInuse(),
	)
}
