package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivationKey is a pre-issued token entitling a bounded number of
// redemptions. UsageCount only grows through successful redemptions.
type ActivationKey struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	Value       string    `json:"key_value" gorm:"column:key_value;uniqueIndex;not null"`
	Description *string   `json:"description"`
	Active      bool      `json:"is_active" gorm:"column:is_active;not null;index"`
	UsageCount  int       `json:"usage_count" gorm:"not null;default:0"`
	MaxUsage    *int      `json:"max_usage"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (k *ActivationKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// Exhausted reports whether the key has no redemptions left.
func (k *ActivationKey) Exhausted() bool {
	return k.MaxUsage != nil && k.UsageCount >= *k.MaxUsage
}
