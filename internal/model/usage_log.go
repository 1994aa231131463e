package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageLog records one redemption attempt. Rows are never updated.
type UsageLog struct {
	ID             string         `json:"id" gorm:"primaryKey;size:36"`
	KeyID          *string        `json:"software_key_id" gorm:"column:software_key_id;size:36;index"`
	Key            *ActivationKey `json:"software_keys,omitempty" gorm:"foreignKey:KeyID;constraint:OnDelete:SET NULL"`
	InstallationID string         `json:"iid" gorm:"column:iid;not null"`
	ConfirmationID *string        `json:"cid" gorm:"column:cid"`
	Success        bool           `json:"success" gorm:"not null;index"`
	ErrorMessage   *string        `json:"error_message"`
	ClientIP       string         `json:"ip_address" gorm:"column:ip_address"`
	UserAgent      *string        `json:"user_agent"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

func (l *UsageLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
