package database

import (
	"fmt"
	"time"

	"github.com/wnt/turfpoints/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens a Postgres-backed gorm handle for the given DSN and migrates
// the schema. The handle is passed explicitly to every service; there is no
// package-level connection.
func Connect(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	// Configure GORM with optimized settings
	config := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		PrepareStmt:    true,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema for all engine models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.Transaction{},
		&models.Spot{},
		&models.Visit{},
		&models.WeeklySpotPoints{},
		&models.Quest{},
		&models.UserQuest{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Coupon{},
		&models.CouponRedemption{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Add composite indexes for common query patterns
	db.Exec("CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions(user_id, created_at DESC)")
	db.Exec("CREATE UNIQUE INDEX IF NOT EXISTS idx_visits_user_spot_open ON visits(user_id, spot_id) WHERE check_out_time IS NULL")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_visits_open_heartbeat ON visits(last_heartbeat_at) WHERE check_out_time IS NULL")
	db.Exec("CREATE INDEX IF NOT EXISTS idx_weekly_points_leader ON weekly_spot_points(spot_id, week_start, points DESC)")

	return nil
}
