package service

import (
	"context"
	"encoding/json"
	"time"

	"activation-portal/internal/model"

	"gorm.io/gorm"
)

// AuditLog records administrative operations.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) LogOperation(ctx context.Context, userID uint, action, target, targetID string, details interface{}) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	log := &model.OperationLog{
		UserID:    userID,
		Action:    action,
		Target:    target,
		TargetID:  targetID,
		Details:   string(detailsJSON),
		CreatedAt: time.Now(),
	}

	return a.db.WithContext(ctx).Create(log).Error
}

// 获取操作日志列表
func (a *AuditLog) GetOperationLogs(ctx context.Context, page Page) ([]model.OperationLog, int64, error) {
	var logs []model.OperationLog
	var total int64

	page = page.Normalize()
	db := a.db.WithContext(ctx)

	if err := db.Model(&model.OperationLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("created_at DESC").Order("id DESC").Offset(page.Offset()).Limit(page.Size).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// 获取用户的操作日志
func (a *AuditLog) GetUserOperationLogs(ctx context.Context, userID uint, page Page) ([]model.OperationLog, int64, error) {
	var logs []model.OperationLog
	var total int64

	page = page.Normalize()
	db := a.db.WithContext(ctx)

	if err := db.Model(&model.OperationLog{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Offset(page.Offset()).Limit(page.Size).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
