package contest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/turfpoints/internal/accrual"
	"github.com/wnt/turfpoints/internal/database"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/notify"
	"gorm.io/gorm"
)

func setupScheduler(t *testing.T) (*Scheduler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.ConnectSQLite(dsn)
	require.NoError(t, err)
	return NewScheduler(db, notify.Nop{}, zerolog.Nop()), db
}

func createUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()
	user := models.User{Username: username, Level: 1}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createSpot(t *testing.T, db *gorm.DB, name string, ownerID *uint) models.Spot {
	t.Helper()
	spot := models.Spot{
		CreatorID:         1,
		Name:              name,
		TotalPointsBudget: 1000,
		RemainingPoints:   1000,
		RatePerMinute:     60,
		Active:            true,
		Level:             1,
		OwnerID:           ownerID,
		TaxRatePercent:    models.BaseTaxRatePercent,
	}
	require.NoError(t, db.Create(&spot).Error)
	return spot
}

func addWeeklyPoints(t *testing.T, db *gorm.DB, spotID, userID uint, points int64) {
	t.Helper()
	row := models.WeeklySpotPoints{
		SpotID:    spotID,
		WeekStart: accrual.WeekStart(time.Now().UTC()),
		UserID:    userID,
		Points:    points,
	}
	require.NoError(t, db.Create(&row).Error)
}

func reloadSpot(t *testing.T, db *gorm.DB, spotID uint) models.Spot {
	t.Helper()
	var spot models.Spot
	require.NoError(t, db.First(&spot, spotID).Error)
	return spot
}

func TestRunOnceTransfersToWeeklyLeader(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "incumbent")
	challenger := createUser(t, db, "challenger")
	spot := createSpot(t, db, "Plaza", &owner.ID)
	addWeeklyPoints(t, db, spot.ID, owner.ID, 40)
	addWeeklyPoints(t, db, spot.ID, challenger.ID, 120)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, challenger.ID, *got.OwnerID)
	require.NotNil(t, got.LastOwnerChangeAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastOwnerChangeAt, time.Minute)
}

func TestRunOnceClaimsUnownedSpot(t *testing.T) {
	sched, db := setupScheduler(t)

	player := createUser(t, db, "pioneer")
	spot := createSpot(t, db, "Frontier", nil)
	addWeeklyPoints(t, db, spot.ID, player.ID, 10)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, player.ID, *got.OwnerID)
}

func TestRunOnceShieldedSpotImmune(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "defender")
	challenger := createUser(t, db, "attacker")
	spot := createSpot(t, db, "Citadel", &owner.ID)
	shieldUntil := time.Now().UTC().Add(time.Hour)
	require.NoError(t, db.Model(&models.Spot{}).Where("id = ?", spot.ID).
		Update("shield_expires_at", shieldUntil).Error)
	addWeeklyPoints(t, db, spot.ID, challenger.ID, 500)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID, "shielded spot must not change hands")
	assert.Nil(t, got.LastOwnerChangeAt)
}

func TestRunOnceExpiredShieldContested(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "lapsed")
	challenger := createUser(t, db, "patient")
	spot := createSpot(t, db, "Ruins", &owner.ID)
	expired := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, db.Model(&models.Spot{}).Where("id = ?", spot.ID).
		Update("shield_expires_at", expired).Error)
	addWeeklyPoints(t, db, spot.ID, challenger.ID, 50)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, challenger.ID, *got.OwnerID)
}

func TestRunOnceNoScorersKeepsOwner(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "quiet")
	spot := createSpot(t, db, "Backwater", &owner.ID)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID)
	assert.Nil(t, got.LastOwnerChangeAt)
}

func TestRunOnceLeaderAlreadyOwnsNoChurn(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "steady")
	spot := createSpot(t, db, "Home Turf", &owner.ID)
	addWeeklyPoints(t, db, spot.ID, owner.ID, 80)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	assert.Nil(t, got.LastOwnerChangeAt, "re-confirming the owner must not record a change")
}

func TestStaleOwnerUpdateIsNoOp(t *testing.T) {
	_, db := setupScheduler(t)

	owner := createUser(t, db, "original")
	usurper := createUser(t, db, "usurper")
	challenger := createUser(t, db, "late")
	spot := createSpot(t, db, "Crossroads", &owner.ID)

	// An overlapping run moves the spot after our read. The transfer is
	// keyed on the owner we observed, so it must affect zero rows.
	require.NoError(t, db.Model(&models.Spot{}).Where("id = ?", spot.ID).
		Update("owner_id", usurper.ID).Error)

	res := db.Model(&models.Spot{}).
		Where("id = ? AND owner_id = ?", spot.ID, owner.ID).
		Updates(map[string]interface{}{"owner_id": challenger.ID})
	require.NoError(t, res.Error)
	assert.Zero(t, res.RowsAffected)

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, usurper.ID, *got.OwnerID)
}

func TestRunOnceIgnoresInactiveSpots(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "retired")
	challenger := createUser(t, db, "eager")
	spot := createSpot(t, db, "Closed Park", &owner.ID)
	require.NoError(t, db.Model(&models.Spot{}).Where("id = ?", spot.ID).
		Update("active", false).Error)
	addWeeklyPoints(t, db, spot.ID, challenger.ID, 200)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID)
}

func TestRunOnceLastWeekPointsIgnored(t *testing.T) {
	sched, db := setupScheduler(t)

	owner := createUser(t, db, "holder")
	challenger := createUser(t, db, "past-glory")
	spot := createSpot(t, db, "Arena", &owner.ID)
	lastWeek := accrual.WeekStart(time.Now().UTC()).AddDate(0, 0, -7)
	row := models.WeeklySpotPoints{SpotID: spot.ID, WeekStart: lastWeek, UserID: challenger.ID, Points: 999}
	require.NoError(t, db.Create(&row).Error)

	require.NoError(t, sched.RunOnce(context.Background()))

	got := reloadSpot(t, db, spot.ID)
	require.NotNil(t, got.OwnerID)
	assert.Equal(t, owner.ID, *got.OwnerID, "only the current week counts")
}
