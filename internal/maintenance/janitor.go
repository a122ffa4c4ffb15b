// Package maintenance runs periodic housekeeping on the workspace.
package maintenance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/logging"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/metrics"
	"github.com/GoSim-25-26J-441/rvd-backend/internal/workspace"
)

// DefaultSchedule runs the sweep every 15 minutes (cron with seconds).
const DefaultSchedule = "0 */15 * * * *"

var internalPrefixes = []string{workspace.StagingPrefix, workspace.TrashPrefix, workspace.TempPrefix}

// Janitor removes staging, trash and temp entries left in the workspace by
// interrupted operations.
type Janitor struct {
	base    string
	maxAge  time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	cron    *cron.Cron
}

func NewJanitor(base string, maxAge time.Duration, log *zap.Logger, m *metrics.Metrics) *Janitor {
	return &Janitor{
		base:    base,
		maxAge:  maxAge,
		log:     logging.OrNop(log),
		metrics: m,
		now:     time.Now,
	}
}

// Start schedules the sweep.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(); err != nil {
			j.log.Warn("workspace sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron = c
	c.Start()
	j.log.Info("janitor started", zap.String("schedule", schedule), zap.Duration("max_age", j.maxAge))
	return nil
}

// Stop halts the schedule and waits for a running sweep until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Sweep removes internal entries older than the max age and returns how many
// it removed. Projects are never touched.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.base)
	if err != nil {
		return 0, fmt.Errorf("read workspace: %w", err)
	}
	cutoff := j.now().Add(-j.maxAge)

	removed := 0
	for _, e := range entries {
		if !isInternal(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Gone already.
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.base, e.Name())
		if err := os.RemoveAll(path); err != nil {
			j.log.Warn("stale entry not removed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
		j.log.Debug("stale entry removed", zap.String("path", path))
	}
	j.metrics.JanitorRemoved(removed)
	if removed > 0 {
		j.log.Info("workspace swept", zap.Int("removed", removed))
	}
	return removed, nil
}

func isInternal(name string) bool {
	for _, p := range internalPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
