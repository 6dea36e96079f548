package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/apiflow/pkg/archive"
)

// Config contains the pruning policy.
type Config struct {
	// RetentionDays is the maximum entry age. Zero disables age pruning.
	RetentionDays int

	// MaxRecords caps the archive size. Zero disables count pruning.
	MaxRecords int64

	// PruneSchedule is a standard five field cron expression. Empty
	// disables scheduled pruning.
	PruneSchedule string
}

// DefaultConfig returns the default pruning policy.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 7,
		MaxRecords:    100000,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner deletes archived entries by age and count.
type Pruner struct {
	storage   archive.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a pruner for storage.
func NewPruner(storage archive.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "archive.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p
}

// Prune applies the configured policy once and returns the number of
// entries deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var olderThan time.Duration
	if p.config.RetentionDays > 0 {
		olderThan = time.Duration(p.config.RetentionDays) * 24 * time.Hour
	}
	return p.PruneWith(ctx, olderThan, p.config.MaxRecords)
}

// PruneWith deletes entries started more than olderThan ago, then the oldest
// entries beyond maxRecords. A zero argument skips that step.
func (p *Pruner) PruneWith(ctx context.Context, olderThan time.Duration, maxRecords int64) (int64, error) {
	var total int64

	if olderThan > 0 {
		cutoff := p.now().Add(-olderThan)
		deleted, err := p.storage.Delete(ctx, &archive.Query{Until: &cutoff})
		if err != nil {
			return total, archive.NewRetentionError(p.config.RetentionDays, err)
		}
		total += deleted
		p.logger.Debug("pruned entries by age", "deleted_count", deleted, "cutoff", cutoff)
	}

	if maxRecords > 0 {
		deleted, err := p.pruneByCount(ctx, maxRecords)
		total += deleted
		if err != nil {
			return total, archive.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	if total > 0 {
		p.logger.Info("archive pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_records", maxRecords,
		)
	}
	return total, nil
}

// pruneByCount deletes the oldest entries in batches until at most max
// remain. Entries sharing the cutoff start time are deleted together.
func (p *Pruner) pruneByCount(ctx context.Context, max int64) (int64, error) {
	var total int64
	for {
		count, err := p.storage.Count(ctx, &archive.Query{})
		if err != nil {
			return total, fmt.Errorf("count entries: %w", err)
		}
		if count <= max {
			return total, nil
		}

		batch := count - max
		if batch > archive.MaxLimit {
			batch = archive.MaxLimit
		}
		oldest, err := p.storage.Query(ctx, &archive.Query{
			Limit:     int(batch),
			SortOrder: archive.SortAsc,
		})
		if err != nil {
			return total, fmt.Errorf("query oldest entries: %w", err)
		}
		if len(oldest) == 0 {
			return total, nil
		}

		cutoff := oldest[len(oldest)-1].StartedAt
		deleted, err := p.storage.Delete(ctx, &archive.Query{Until: &cutoff})
		if err != nil {
			return total, fmt.Errorf("delete entries: %w", err)
		}
		total += deleted
		if deleted == 0 {
			return total, nil
		}
	}
}

// Start runs Prune on the configured schedule until ctx is done or Stop is
// called.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops scheduled pruning.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
