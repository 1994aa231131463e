package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"activation-portal/internal/metrics"
	"activation-portal/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LogFilter struct {
	Search  string
	Success *bool
	KeyID   string
}

// Ledger is the append-only record of redemption attempts.
type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *metrics.Recorder
}

func NewLedger(db *gorm.DB, log *zap.Logger, rec *metrics.Recorder) *Ledger {
	return &Ledger{db: db, log: log.Named("ledger"), metrics: rec}
}

// Append stores entry. A failed insert is logged and dropped: the outcome
// of the redemption it describes has already been decided.
func (l *Ledger) Append(ctx context.Context, entry *model.UsageLog) {
	if err := l.db.WithContext(ctx).Create(entry).Error; err != nil {
		l.metrics.LedgerFailure()
		l.log.Error("failed to append usage log",
			zap.Error(err),
			zap.Stringp("key_id", entry.KeyID),
			zap.String("iid", entry.InstallationID),
			zap.Bool("success", entry.Success),
		)
	}
}

// List returns log entries newest first, with the key value preloaded.
func (l *Ledger) List(ctx context.Context, filter LogFilter, page Page) ([]model.UsageLog, int64, error) {
	page = page.Normalize()
	q := l.db.WithContext(ctx).Model(&model.UsageLog{}).
		Joins("LEFT JOIN activation_keys ON activation_keys.id = usage_logs.software_key_id")

	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(usage_logs.iid) LIKE ? OR LOWER(COALESCE(activation_keys.key_value, '')) LIKE ?", like, like)
	}
	if filter.Success != nil {
		q = q.Where("usage_logs.success = ?", *filter.Success)
	}
	if filter.KeyID != "" {
		q = q.Where("usage_logs.software_key_id = ?", filter.KeyID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count usage logs: %w", err)
	}

	var logs []model.UsageLog
	err := q.Select("usage_logs.*").
		Preload("Key").
		Order("usage_logs.created_at DESC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list usage logs: %w", err)
	}
	return logs, total, nil
}

// AggregateCounts counts every recorded attempt by outcome.
func (l *Ledger) AggregateCounts(ctx context.Context) (successful, failed int64, err error) {
	db := l.db.WithContext(ctx)
	if err = db.Model(&model.UsageLog{}).Where("success = ?", true).Count(&successful).Error; err != nil {
		return 0, 0, fmt.Errorf("count successful: %w", err)
	}
	if err = db.Model(&model.UsageLog{}).Where("success = ?", false).Count(&failed).Error; err != nil {
		return 0, 0, fmt.Errorf("count failed: %w", err)
	}
	return successful, failed, nil
}

// Purge removes entries created before the given time. It is the only way
// ledger rows are ever deleted.
func (l *Ledger) Purge(ctx context.Context, before time.Time) (int64, error) {
	res := l.db.WithContext(ctx).Where("created_at < ?", before).Delete(&model.UsageLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge usage logs: %w", res.Error)
	}
	l.log.Info("purged usage logs", zap.Time("before", before), zap.Int64("rows", res.RowsAffected))
	return res.RowsAffected, nil
}
