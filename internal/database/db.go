package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Baaaki/songshare/internal/config"
	"github.com/Baaaki/songshare/internal/models"
	"github.com/Baaaki/songshare/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the connection pool for the configured driver. The caller
// owns the returned handle and must Close it on shutdown.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		dsn := cfg.DatabaseDSN()
		if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseDSN())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := Open(dialector, !cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	logger.Log.Info("Database connected",
		zap.String("driver", cfg.DatabaseDriver),
	)
	return db, nil
}

// Open wraps gorm.Open with the settings every caller needs. TranslateError
// turns driver-specific unique violations into gorm.ErrDuplicatedKey.
func Open(dialector gorm.Dialector, verbose bool) (*gorm.DB, error) {
	level := gormlogger.Warn
	if !verbose {
		level = gormlogger.Error
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Song{},
		&models.Playlist{},
		&models.PlaylistSong{},
	)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	logger.Log.Info("Database migration completed")
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
