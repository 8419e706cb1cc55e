package database

import (
	"Courier/internal/api/config"
	"Courier/internal/model"
	"Courier/internal/pkg/logger"
	"errors"
	"fmt"
	log "log/slog"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewGormDB 初始化并返回 *gorm.DB 实例，处理连接池配置
func NewGormDB(cfg *config.DBConfig) (*gorm.DB, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.NewGormLogger(),
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)

	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database connection check failed: %w", err)
	}

	if cfg.AutoMigrate {
		if err = AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
	}

	log.Info("Database connection established successfully.")
	return db, nil
}

// AutoMigrate 同步表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
		&model.MessageReadStatus{},
		&model.NotificationChannel{},
		&model.NotificationType{},
		&model.UserNotificationPreference{},
		&model.Notification{},
		&model.NotificationDelivery{},
	)
}

// normalizeDSN 时间字段统一按 UTC 解析
func normalizeDSN(dsn string) (string, error) {
	c, err := mysqlDriver.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ParseTime = true
	c.Loc = time.UTC
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if _, ok := c.Params["charset"]; !ok {
		c.Params["charset"] = "utf8mb4"
	}
	return c.FormatDSN(), nil
}

// IsDuplicateKey 判断是否为唯一键冲突
func IsDuplicateKey(err error) bool {
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
