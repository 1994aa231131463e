package model

import "time"

// OperationLog is the audit trail of administrative actions.
type OperationLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"index"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	TargetID  string    `json:"target_id"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

const (
	ActionKeyCreate     = "key.create"
	ActionKeyBulkCreate = "key.bulk_create"
	ActionKeyUpdate     = "key.update"
	ActionKeyToggle     = "key.toggle"
	ActionKeyDelete     = "key.delete"
	ActionLogPurge      = "log.purge"
)
