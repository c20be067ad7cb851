// Package retention removes session records that have been idle past
// a configured TTL.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper deletes session context files whose last modification is
// older than TTL. A zero TTL disables sweeping entirely.
type Sweeper struct {
	dir    string
	ttl    time.Duration
	logger *slog.Logger
	cron   *cron.Cron

	// now is overridable for tests.
	now func() time.Time
}

// NewSweeper returns a sweeper over the given context directory.
func NewSweeper(dir string, ttl time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{dir: dir, ttl: ttl, logger: logger, now: time.Now}
}

// Sweep scans the context directory once and removes expired records.
// It returns the number of files removed. A missing directory is not
// an error: nothing has been persisted yet.
func (s *Sweeper) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read context dir: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("skipping unreadable entry", "file", entry.Name(), "error", err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to remove expired session", "file", entry.Name(), "error", err)
			continue
		}
		removed++
		s.logger.Info("removed expired session record",
			"file", entry.Name(),
			"age", s.now().Sub(info.ModTime()).Round(time.Minute).String())
	}
	return removed, nil
}

// Start schedules recurring sweeps using the given cron expression.
// It is a no-op when the TTL is zero.
func (s *Sweeper) Start(schedule string) error {
	if s.ttl <= 0 {
		s.logger.Info("session retention disabled")
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		removed, err := s.Sweep()
		if err != nil {
			s.logger.Error("retention sweep failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("retention sweep complete", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("session retention started", "schedule", schedule, "ttl", s.ttl.String())
	return nil
}

// Stop halts scheduled sweeps and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
