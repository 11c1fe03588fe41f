package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ncastellanos/vecino/internal/models"
	"github.com/ncastellanos/vecino/internal/services"
	"github.com/ncastellanos/vecino/pkg/logger"
)

const (
	defaultExpirySpec = "@every 1m"
	defaultCacheSpec  = "@hourly"
)

// Sweeper coordinates background maintenance: persisting alert expiry and
// pruning stale cache entries. Readers never depend on the sweep thanks to
// read-time expiry correction; the sweep keeps the stored rows honest.
type Sweeper struct {
	db      *gorm.DB
	alerts  *services.AlertService
	cron    *cron.Cron
	now     func() time.Time
	log     *zap.Logger
	enabled bool

	expirySchedule string
	cacheSchedule  string
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(sweeper *Sweeper) {
		if c != nil {
			sweeper.cron = c
		}
	}
}

// WithNow overrides the clock used for cache pruning comparisons.
func WithNow(now func() time.Time) Option {
	return func(sweeper *Sweeper) {
		if now != nil {
			sweeper.now = now
		}
	}
}

// WithExpirySchedule overrides the cron specification for the alert expiry sweep.
func WithExpirySchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.expirySchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache entry pruning.
func WithCacheSchedule(spec string) Option {
	return func(sweeper *Sweeper) {
		if spec != "" {
			sweeper.cacheSchedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper with sensible defaults. Any nil dependency
// results in the corresponding job being skipped.
func NewSweeper(db *gorm.DB, alerts *services.AlertService, opts ...Option) *Sweeper {
	sweeper := &Sweeper{
		db:             db,
		alerts:         alerts,
		now:            time.Now,
		expirySchedule: defaultExpirySpec,
		cacheSchedule:  defaultCacheSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	sweeper.enabled = sweeper.alerts != nil || sweeper.db != nil

	return sweeper
}

// Start registers the jobs with the cron scheduler and launches it.
func (s *Sweeper) Start() error {
	if !s.enabled {
		return nil
	}

	if s.alerts != nil {
		if _, err := s.cron.AddFunc(s.expirySchedule, func() {
			ctx := context.Background()
			if _, err := s.alerts.ExpireOverdue(ctx); err != nil {
				s.log.Warn("alert expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.db != nil {
		if _, err := s.cron.AddFunc(s.cacheSchedule, func() {
			ctx := context.Background()
			if _, err := PruneCacheEntries(ctx, s.db, s.now()); err != nil {
				s.log.Warn("cache prune failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes all configured maintenance routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.alerts != nil {
		if _, err := s.alerts.ExpireOverdue(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.db != nil {
		if _, err := PruneCacheEntries(ctx, s.db, s.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// PruneCacheEntries removes expired cache rows from the database-backed store.
func PruneCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("prune cache: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Zero expiry means no expiry; the lower bound leaves those rows alone.
	epoch := time.Date(1971, 1, 1, 0, 0, 0, 0, time.UTC)
	result := db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", epoch, now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune cache: %w", result.Error)
	}
	return result.RowsAffected, nil
}
