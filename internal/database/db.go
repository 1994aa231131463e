package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"activation-portal/internal/config"
	"activation-portal/internal/model"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormprom "gorm.io/plugin/prometheus"
)

// Models lists every table owned by the service, in migration order.
var Models = []any{
	&model.ActivationKey{},
	&model.UsageLog{},
	&model.User{},
	&model.LoginLog{},
	&model.OperationLog{},
	&model.RevokedToken{},
}

// Open connects to the configured store and migrates the schema.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := dialect(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Info
	if cfg.IsProduction() {
		level = logger.Warn
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         NewZapGormLogger(log, level, !cfg.IsProduction()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	if cfg.MetricsEnabled {
		// connection pool gauges on the default registry
		if err := db.Use(gormprom.New(gormprom.Config{
			DBName:          "activation",
			RefreshInterval: 15,
		})); err != nil {
			return nil, fmt.Errorf("register db metrics: %w", err)
		}
	}

	log.Info("[DB] database ready", zap.String("driver", cfg.Database.Driver))
	return db, nil
}

func dialect(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return postgres.Open(cfg.Database.DSN), nil
	case "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("创建数据目录失败: %w", err)
			}
			dsn = filepath.Join(cfg.Database.DataDir, "activation.db")
		}
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported driver %q", cfg.Database.Driver)
}

// SeedAdmin creates the administrator account when it does not exist yet.
// Nothing is created without a password.
func SeedAdmin(db *gorm.DB, email, password string, log *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	var existing model.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("检查管理员账户失败: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("生成密码哈希失败: %w", err)
	}

	admin := &model.User{
		Email:    email,
		Password: string(hashed),
		Status:   "active",
	}
	if err := db.Create(admin).Error; err != nil {
		return fmt.Errorf("创建管理员账户失败: %w", err)
	}

	log.Info("created administrator account", zap.String("email", email))
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
