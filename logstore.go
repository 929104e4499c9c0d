package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RelayLogStore keeps a per-recipient history of dispatch outcomes in MySQL.
// It is optional: a nil store disables logging and all methods are nil-safe.
type RelayLogStore struct {
	db *gorm.DB
}

// NewRelayLogStore connects to the relay-log database and runs migrations
func NewRelayLogStore(config *DatabaseConfig) (*RelayLogStore, error) {
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(mysql.Open(config.GetDSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&RelayLog{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logrus.Info("Relay log database initialized")
	return &RelayLogStore{db: db}, nil
}

// Record logs one dispatch outcome, best-effort
func (s *RelayLogStore) Record(messageID, recipient, destination, status, errorMsg string) {
	if s == nil {
		return
	}

	entry := RelayLog{
		MessageID:   messageID,
		Recipient:   recipient,
		Destination: destination,
		Status:      status,
		ErrorMsg:    errorMsg,
		CreatedAt:   time.Now(),
	}
	if err := s.db.Create(&entry).Error; err != nil {
		logrus.Errorf("Failed to record relay log: %v", err)
	}
}

// List returns relay log entries, newest first, with pagination
func (s *RelayLogStore) List(page, limit int) ([]RelayLog, int64, error) {
	if s == nil {
		return nil, 0, fmt.Errorf("relay log store is disabled")
	}

	var total int64
	if err := s.db.Model(&RelayLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count relay logs: %w", err)
	}

	var entries []RelayLog
	offset := (page - 1) * limit
	if err := s.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch relay logs: %w", err)
	}
	return entries, total, nil
}
