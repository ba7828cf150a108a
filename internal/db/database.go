package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urbanbigdatacentre/cctv-gcc-api/config"
	"github.com/urbanbigdatacentre/cctv-gcc-api/internal/core/models"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database connection.
var DB *gorm.DB

// Initialize opens the configured SQLite file, migrates it and stores the handle in DB.
func Initialize(cfg *config.Config) error {
	conn, err := Open(cfg.DB.File)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

// Open connects to the SQLite database at path with foreign keys enforced and runs the
// migrations.
func Open(path string) (*gorm.DB, error) {
	if path != "" && path != ":memory:" {
		dbDir := filepath.Dir(path)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gormLogger := logger.New(
		log.StandardLogger(),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Infof("Connecting to database: %s", path)
	// Timestamps are stored as text; keeping them all in UTC keeps comparisons lexical.
	conn, err := gorm.Open(sqlite.Open(dsn(path)), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite has a single writer. Callers inside a transaction must use the tx handle only.
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate creates or updates all tables and seeds the default camera group.
func Migrate(conn *gorm.DB) error {
	log.Info("Running database migrations...")
	if err := conn.AutoMigrate(
		&models.Camera{},
		&models.CameraGroup{},
		&models.TF1Record{},
		&models.TF2Record{},
		&models.YOLORecord{},
		&models.ExclusionRange{},
		&models.ReportUpload{},
	); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return fmt.Errorf("database migration failed: %w", err)
	}

	var group models.CameraGroup
	err := conn.First(&group, models.DefaultGroupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		group = models.CameraGroup{
			ID:          models.DefaultGroupID,
			Name:        models.DefaultGroupName,
			Description: "Every camera joins this group when it is created.",
		}
		if err := conn.Create(&group).Error; err != nil {
			return fmt.Errorf("failed to seed default camera group: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up default camera group: %w", err)
	}

	log.Info("Database migrations completed successfully")
	return nil
}
