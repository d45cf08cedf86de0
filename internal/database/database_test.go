package database

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wnt/turfpoints/internal/models"
	"gorm.io/gorm"
)

func TestConnectRequiresDSN(t *testing.T) {
	db, err := Connect("")
	if err == nil {
		t.Error("Connect() should return an error when the DSN is empty")
	}
	if db != nil {
		t.Error("Connect() should return nil DB when connection fails")
	}
}

func TestConnectWithInvalidDSN(t *testing.T) {
	// Skip in CI environment or when not explicitly enabled
	if os.Getenv("RUN_DB_TESTS") != "true" {
		t.Skip("Skipping database connection test. Set RUN_DB_TESTS=true to enable.")
	}

	db, err := Connect("host=localhost user=nobody password=wrong dbname=missing port=5432 sslmode=disable")
	if err == nil {
		t.Error("Connect() should return an error with invalid credentials")
	}
	if db != nil {
		t.Error("Connect() should return nil DB when connection fails")
	}
}

func TestConnectSQLiteMigrates(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := ConnectSQLite(dsn)
	require.NoError(t, err)

	user := models.User{Username: "alice"}
	require.NoError(t, db.Create(&user).Error)

	wallet := models.Wallet{UserID: user.ID, Balance: 500}
	require.NoError(t, db.Create(&wallet).Error)

	spot := models.Spot{
		CreatorID:         user.ID,
		Name:              "Fountain Square",
		Latitude:          35.6895,
		Longitude:         139.6917,
		TotalPointsBudget: 1000,
		RemainingPoints:   1000,
		RatePerMinute:     60,
		Active:            true,
		Level:             1,
		TaxRatePercent:    models.BaseTaxRatePercent,
	}
	require.NoError(t, db.Create(&spot).Error)

	var count int64
	require.NoError(t, db.Model(&models.Wallet{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestWeeklyPointsUniqueKey(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := ConnectSQLite(dsn)
	require.NoError(t, err)

	row := models.WeeklySpotPoints{SpotID: 1, UserID: 2, Points: 10}
	require.NoError(t, db.Create(&row).Error)

	dup := models.WeeklySpotPoints{SpotID: 1, UserID: 2, Points: 20}
	require.Error(t, db.Create(&dup).Error, "duplicate (spot, week, user) rows must be rejected")
}

func TestOpenVisitUniqueKey(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := ConnectSQLite(dsn)
	require.NoError(t, err)

	now := time.Now().UTC()
	first := models.Visit{SpotID: 1, UserID: 1, CheckInTime: now, LastHeartbeatAt: now}
	require.NoError(t, db.Create(&first).Error)

	second := models.Visit{SpotID: 1, UserID: 1, CheckInTime: now, LastHeartbeatAt: now}
	err = db.Create(&second).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey,
		"a second open visit for the same (user, spot) must be rejected")

	// A different spot or user is fine.
	other := models.Visit{SpotID: 2, UserID: 1, CheckInTime: now, LastHeartbeatAt: now}
	require.NoError(t, db.Create(&other).Error)

	// Closing the first visit frees the slot for a new session.
	require.NoError(t, db.Model(&models.Visit{}).Where("id = ?", first.ID).
		Update("check_out_time", now).Error)
	again := models.Visit{SpotID: 1, UserID: 1, CheckInTime: now, LastHeartbeatAt: now}
	require.NoError(t, db.Create(&again).Error)
}

func TestDisabledFlagsPersist(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := ConnectSQLite(dsn)
	require.NoError(t, err)

	coupon := models.Coupon{Name: "Retired", Kind: models.CouponKindReward, PricePoints: 1, Stock: 1, Active: false}
	require.NoError(t, db.Create(&coupon).Error)
	quest := models.Quest{Name: "Archived", ConditionType: models.QuestConditionVisitCount, ConditionValue: 1, Active: false}
	require.NoError(t, db.Create(&quest).Error)
	badge := models.Badge{Name: "Legacy", CriteriaType: models.BadgeCriteriaVisits, CriteriaValue: 1, Active: false}
	require.NoError(t, db.Create(&badge).Error)
	spot := models.Spot{
		CreatorID: 1, Name: "Closed", TotalPointsBudget: 10, RemainingPoints: 10,
		RatePerMinute: 1, Active: false, Level: 1, TaxRatePercent: models.BaseTaxRatePercent,
	}
	require.NoError(t, db.Create(&spot).Error)

	var got models.Coupon
	require.NoError(t, db.First(&got, coupon.ID).Error)
	require.False(t, got.Active, "inactive coupon must stay inactive after insert")
	var gotQuest models.Quest
	require.NoError(t, db.First(&gotQuest, quest.ID).Error)
	require.False(t, gotQuest.Active)
	var gotBadge models.Badge
	require.NoError(t, db.First(&gotBadge, badge.ID).Error)
	require.False(t, gotBadge.Active)
	var gotSpot models.Spot
	require.NoError(t, db.First(&gotSpot, spot.ID).Error)
	require.False(t, gotSpot.Active)
}
