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

	"github.com/charlesng35/reviewhub/internal/models"
	"github.com/charlesng35/reviewhub/pkg/logger"
	"github.com/charlesng35/reviewhub/pkg/metrics"
)

const (
	defaultPendingRetention = 7 * 24 * time.Hour
	defaultPendingSpec      = "@hourly"
	defaultReconcileSpec    = "@daily"
)

// Cleaner coordinates background maintenance: purging long-expired pending verifications
// and re-linking verified websites whose owner account lost track of them.
type Cleaner struct {
	db        *gorm.DB
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration

	pendingSchedule   string
	reconcileSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithPendingRetention sets how long an expired pending verification is kept.
func WithPendingRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithPendingSchedule overrides the cron specification for the pending purge.
func WithPendingSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.pendingSchedule = spec
		}
	}
}

// WithReconcileSchedule overrides the cron specification for owner reconciliation.
func WithReconcileSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.reconcileSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil db disables every job.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                db,
		now:               time.Now,
		retention:         defaultPendingRetention,
		pendingSchedule:   defaultPendingSpec,
		reconcileSchedule: defaultReconcileSpec,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.pendingSchedule, func() {
		removed, err := PurgeStalePending(context.Background(), c.db, c.now().Add(-c.retention))
		if err != nil {
			c.log.Warn("pending verification purge failed", zap.Error(err))
			return
		}
		if removed > 0 {
			c.log.Info("purged stale pending verifications", zap.Int64("removed", removed))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule pending purge: %w", err)
	}

	if _, err := c.cron.AddFunc(c.reconcileSchedule, func() {
		stats, err := ReconcileOwners(context.Background(), c.db)
		if err != nil {
			c.log.Warn("owner reconciliation failed", zap.Error(err))
			return
		}
		if stats.Relinked > 0 || stats.Unowned > 0 {
			c.log.Info("owner reconciliation finished",
				zap.Int("relinked", stats.Relinked),
				zap.Int64("unowned", stats.Unowned),
			)
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule owner reconciliation: %w", err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.cron.Stop()
}

// RunOnce executes all maintenance routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if _, err := PurgeStalePending(ctx, c.db, c.now().Add(-c.retention)); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := ReconcileOwners(ctx, c.db); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// PurgeStalePending removes pending verifications that expired before cutoff.
func PurgeStalePending(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("purge pending: db is required")
	}

	result := db.WithContext(ctx).
		Where("expires_at < ?", cutoff.UTC()).
		Delete(&models.PendingVerification{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge pending: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ReconcileStats summarises an owner reconciliation pass.
type ReconcileStats struct {
	// Relinked counts owners whose profile was pointed back at their verified website.
	Relinked int
	// Unowned counts verified websites with no owner at all.
	Unowned int64
}

type orphanRow struct {
	WebsiteID string
	URL       string
	OwnerID   string
}

// ReconcileOwners repairs accounts that own a verified website but carry no related website,
// the state left behind when a claim was written without the matching promotion.
func ReconcileOwners(ctx context.Context, db *gorm.DB) (ReconcileStats, error) {
	if db == nil {
		return ReconcileStats{}, errors.New("reconcile owners: db is required")
	}
	db = db.WithContext(ctx)

	var stats ReconcileStats

	var rows []orphanRow
	if err := db.Table("websites").
		Select("websites.id AS website_id, websites.url AS url, websites.owner_id AS owner_id").
		Joins("JOIN users ON users.id = websites.owner_id").
		Where("websites.is_verified = ?", true).
		Where("users.related_website IS NULL OR users.related_website = ''").
		Order("websites.verified_at").
		Scan(&rows).Error; err != nil {
		return stats, fmt.Errorf("reconcile owners: find orphans: %w", err)
	}

	var errs error
	for _, row := range rows {
		result := db.Model(&models.User{}).
			Where("id = ? AND (related_website IS NULL OR related_website = '')", row.OwnerID).
			Updates(map[string]any{
				"role":                      models.RoleBusinessOwner,
				"is_website_owner":          true,
				"is_verified_website_owner": true,
				"related_website":           row.URL,
				"website_id":                row.WebsiteID,
			})
		if result.Error != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile owners: relink %s: %w", row.URL, result.Error))
			continue
		}
		stats.Relinked += int(result.RowsAffected)
	}

	if err := db.Model(&models.Website{}).
		Where("is_verified = ? AND owner_id IS NULL", true).
		Count(&stats.Unowned).Error; err != nil {
		errs = multierr.Append(errs, fmt.Errorf("reconcile owners: count unowned: %w", err))
	} else {
		metrics.OrphanedWebsites.Set(float64(stats.Unowned))
	}

	return stats, errs
}
