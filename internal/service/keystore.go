package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"activation-portal/internal/model"

	"gorm.io/gorm"
)

var (
	ErrKeyNotFound     = errors.New("activation key not found")
	ErrDuplicateKey    = errors.New("activation key already exists")
	ErrQuotaExceeded   = errors.New("activation key usage limit reached")
	ErrInvalidKeyInput = errors.New("invalid activation key input")
)

// KeyInput carries the administrator-editable fields of a key.
type KeyInput struct {
	Value       string
	Description string
	MaxUsage    *int
	Active      bool
}

// KeyUpdate replaces the editable fields of a key. UsageCount, when set,
// overwrites the counter. KeepActive leaves the stored active flag alone
// and ignores KeyInput.Active.
type KeyUpdate struct {
	KeyInput
	UsageCount *int
	KeepActive bool
}

type KeyFilter struct {
	Search          string
	IncludeInactive bool
}

// KeyStore persists activation keys and their usage counters.
type KeyStore struct {
	db *gorm.DB
}

func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

// FindActiveByValue looks a key up by its exact value. Inactive keys are
// reported as not found.
func (s *KeyStore) FindActiveByValue(ctx context.Context, value string) (*model.ActivationKey, error) {
	var key model.ActivationKey
	err := s.db.WithContext(ctx).
		Where("key_value = ? AND is_active = ?", value, true).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find key: %w", err)
	}
	return &key, nil
}

func (s *KeyStore) Get(ctx context.Context, id string) (*model.ActivationKey, error) {
	var key model.ActivationKey
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	return &key, nil
}

// IncrementUsage consumes one use of the key and returns the new count.
// The quota check and the increment are a single conditional UPDATE, so
// concurrent redemptions cannot push usage_count past max_usage.
func (s *KeyStore) IncrementUsage(ctx context.Context, id string) (int, error) {
	res := s.db.WithContext(ctx).Model(&model.ActivationKey{}).
		Where("id = ? AND (max_usage IS NULL OR usage_count < max_usage)", id).
		Update("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("increment usage: %w", res.Error)
	}

	key, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		return key.UsageCount, ErrQuotaExceeded
	}
	return key.UsageCount, nil
}

func (s *KeyStore) Create(ctx context.Context, in KeyInput) (*model.ActivationKey, error) {
	key, err := newKey(in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUnique(tx, key.Value, ""); err != nil {
			return err
		}
		return tx.Create(key).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return key, nil
}

// CreateBulk inserts one key per non-blank line of values, sharing the
// template's description, limit and state. Either every key is created or
// none is.
func (s *KeyStore) CreateBulk(ctx context.Context, values []string, template KeyInput) ([]*model.ActivationKey, error) {
	seen := make(map[string]bool)
	var keys []*model.ActivationKey
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if seen[v] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, v)
		}
		seen[v] = true

		in := template
		in.Value = v
		key, err := newKey(in)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no keys given", ErrInvalidKeyInput)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			if err := ensureUnique(tx, key.Value, ""); err != nil {
				return err
			}
		}
		return tx.CreateInBatches(keys, 100).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func (s *KeyStore) Update(ctx context.Context, id string, in KeyUpdate) (*model.ActivationKey, error) {
	fields, err := newKey(in.KeyInput)
	if err != nil {
		return nil, err
	}
	if in.UsageCount != nil && *in.UsageCount < 0 {
		return nil, fmt.Errorf("%w: usage count must not be negative", ErrInvalidKeyInput)
	}

	var key model.ActivationKey
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&key).Error; err != nil {
			return err
		}
		if err := ensureUnique(tx, fields.Value, id); err != nil {
			return err
		}
		if in.KeepActive {
			fields.Active = key.Active
		}

		updates := map[string]any{
			"key_value":   fields.Value,
			"description": fields.Description,
			"max_usage":   fields.MaxUsage,
			"is_active":   fields.Active,
		}
		if in.UsageCount != nil {
			updates["usage_count"] = *in.UsageCount
		}
		if err := tx.Model(&key).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&key).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &key, nil
}

func (s *KeyStore) SetActive(ctx context.Context, id string, active bool) (*model.ActivationKey, error) {
	res := s.db.WithContext(ctx).Model(&model.ActivationKey{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return nil, fmt.Errorf("set active: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrKeyNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the key. Its ledger entries are kept with the key
// reference cleared, whether or not the driver enforces foreign keys.
func (s *KeyStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.ActivationKey{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrKeyNotFound
		}
		return tx.Model(&model.UsageLog{}).
			Where("software_key_id = ?", id).
			Update("software_key_id", nil).Error
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

// List returns keys newest first.
func (s *KeyStore) List(ctx context.Context, filter KeyFilter, page Page) ([]model.ActivationKey, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.ActivationKey{})

	if !filter.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(key_value) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count keys: %w", err)
	}

	var keys []model.ActivationKey
	if err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.Size).Find(&keys).Error; err != nil {
		return nil, 0, fmt.Errorf("list keys: %w", err)
	}
	return keys, total, nil
}

// Counts returns the number of keys and how many of them are active.
func (s *KeyStore) Counts(ctx context.Context) (total, active int64, err error) {
	db := s.db.WithContext(ctx)
	if err = db.Model(&model.ActivationKey{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count keys: %w", err)
	}
	if err = db.Model(&model.ActivationKey{}).Where("is_active = ?", true).Count(&active).Error; err != nil {
		return 0, 0, fmt.Errorf("count active keys: %w", err)
	}
	return total, active, nil
}

func newKey(in KeyInput) (*model.ActivationKey, error) {
	value := strings.TrimSpace(in.Value)
	if value == "" {
		return nil, fmt.Errorf("%w: key value is required", ErrInvalidKeyInput)
	}
	if in.MaxUsage != nil && *in.MaxUsage < 1 {
		return nil, fmt.Errorf("%w: max usage must be positive", ErrInvalidKeyInput)
	}

	key := &model.ActivationKey{
		Value:    value,
		Active:   in.Active,
		MaxUsage: in.MaxUsage,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		key.Description = &d
	}
	return key, nil
}

func ensureUnique(tx *gorm.DB, value, exceptID string) error {
	q := tx.Model(&model.ActivationKey{}).Where("key_value = ?", value)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, value)
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrKeyNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicateKey
	case errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrInvalidKeyInput):
		return err
	}
	return fmt.Errorf("key store: %w", err)
}
