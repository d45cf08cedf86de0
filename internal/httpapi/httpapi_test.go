package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wnt/turfpoints/internal/badges"
	"github.com/wnt/turfpoints/internal/database"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/notify"
	"github.com/wnt/turfpoints/internal/quests"
	"github.com/wnt/turfpoints/internal/shop"
	"github.com/wnt/turfpoints/internal/spots"
	"github.com/wnt/turfpoints/internal/visits"
	"gorm.io/gorm"
)

const welcomeBalance = 100

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.ConnectSQLite(dsn)
	require.NoError(t, err)

	log := zerolog.Nop()
	srv := NewServer(
		db,
		ledger.NewService(db, log),
		visits.NewService(db, notify.Nop{}, 5*time.Second, 5*time.Minute, log),
		spots.NewService(db, log),
		quests.NewService(db, log),
		badges.NewService(db, notify.Nop{}, log),
		shop.NewService(db, log),
		welcomeBalance,
		log,
	)
	return srv.Router(), db
}

func httpDo(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func registerUser(t *testing.T, r *gin.Engine, username string) uint {
	t.Helper()
	w := httpDo(r, "POST", "/users", gin.H{"username": username})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	return uint(body["id"].(float64))
}

func TestRegisterUserSeedsWallet(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "POST", "/users", gin.H{"username": "alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "alice", body["username"])
	assert.EqualValues(t, welcomeBalance, body["balance"])

	userID := uint(body["id"].(float64))
	w = httpDo(r, "GET", fmt.Sprintf("/users/%d/balance", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, welcomeBalance, decode(t, w)["balance"])
}

func TestRegisterUserRollsBackOnWalletFailure(t *testing.T) {
	r, db := setupRouter(t)

	// In a fresh database the first user gets ID 1. Occupying that wallet
	// slot makes the wallet insert fail after the user row is written.
	require.NoError(t, db.Create(&models.Wallet{UserID: 1, Balance: 0, LastTransactionAt: time.Now().UTC()}).Error)

	w := httpDo(r, "POST", "/users", gin.H{"username": "carol"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Zero(t, users, "a failed registration must not leave a user row behind")
}

func TestBalanceUnknownUser(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "GET", "/users/999/balance", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "wallet not found")
}

func TestCreateSpotAndCheckInFlow(t *testing.T) {
	r, _ := setupRouter(t)
	userID := registerUser(t, r, "bob")

	w := httpDo(r, "POST", "/spots", gin.H{
		"creator_id":      userID,
		"name":            "Old Mill",
		"latitude":        35.6895,
		"longitude":       139.6917,
		"budget":          50,
		"rate_per_minute": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	spotBody := decode(t, w)
	spotID := uint(spotBody["ID"].(float64))

	// Budget came out of the creator's wallet.
	w = httpDo(r, "GET", fmt.Sprintf("/users/%d/balance", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, welcomeBalance-50, decode(t, w)["balance"])

	w = httpDo(r, "POST", "/checkin", gin.H{
		"user_id":   userID,
		"spot_id":   spotID,
		"latitude":  35.6895,
		"longitude": 139.6917,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var visit models.Visit
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &visit))
	require.NotZero(t, visit.ID)

	// Immediate heartbeat is within the interval: a duplicate, no earnings.
	w = httpDo(r, "POST", fmt.Sprintf("/visits/%d/heartbeat", visit.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hb visits.HeartbeatResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hb))
	assert.True(t, hb.Duplicate)
	assert.Zero(t, hb.EarnedPoints)

	w = httpDo(r, "POST", fmt.Sprintf("/visits/%d/checkout", visit.ID), gin.H{"user_id": userID})
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Heartbeat after checkout is an invalid session.
	w = httpDo(r, "POST", fmt.Sprintf("/visits/%d/heartbeat", visit.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckInTooFar(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "carol")

	spot := models.Spot{
		CreatorID: userID, Name: "Far Pier", Latitude: 35.6895, Longitude: 139.6917,
		TotalPointsBudget: 100, RemainingPoints: 100, RatePerMinute: 60,
		Active: true, Level: 1, TaxRatePercent: models.BaseTaxRatePercent,
	}
	require.NoError(t, db.Create(&spot).Error)

	w := httpDo(r, "POST", "/checkin", gin.H{
		"user_id":   userID,
		"spot_id":   spot.ID,
		"latitude":  35.7,
		"longitude": 139.6917,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decode(t, w)["error"], "too far")
}

func TestCheckInUnknownSpot(t *testing.T) {
	r, _ := setupRouter(t)
	userID := registerUser(t, r, "dave")

	w := httpDo(r, "POST", "/checkin", gin.H{
		"user_id":   userID,
		"spot_id":   777,
		"latitude":  1.0,
		"longitude": 1.0,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSpotInsufficientFunds(t *testing.T) {
	r, _ := setupRouter(t)
	userID := registerUser(t, r, "erin")

	w := httpDo(r, "POST", "/spots", gin.H{
		"creator_id":      userID,
		"name":            "Gold Vault",
		"latitude":        1.0,
		"longitude":       1.0,
		"budget":          welcomeBalance + 1,
		"rate_per_minute": 60,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "insufficient funds")
}

func TestFundingConfirmCreditsWallet(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "frank")

	w := httpDo(r, "POST", "/funding/confirm", gin.H{
		"user_id":   userID,
		"amount":    250,
		"reference": "inv-2041",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, welcomeBalance+250, decode(t, w)["balance"])

	var entry models.Transaction
	require.NoError(t, db.Where("user_id = ? AND description LIKE ?", userID, "Funding%").
		First(&entry).Error)
	assert.EqualValues(t, 250, entry.Amount)
}

func TestLedgerPagination(t *testing.T) {
	r, _ := setupRouter(t)
	userID := registerUser(t, r, "gail")

	for i := 0; i < 3; i++ {
		w := httpDo(r, "POST", "/funding/confirm", gin.H{
			"user_id":   userID,
			"amount":    10,
			"reference": fmt.Sprintf("top-up-%d", i),
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httpDo(r, "GET", fmt.Sprintf("/users/%d/ledger?page=1&page_size=2", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 4, body["total"]) // welcome entry + 3 fundings
	assert.Len(t, body["entries"], 2)
}

func TestQuestClaimFlow(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "hank")

	quest := models.Quest{
		Name: "Socialite", ConditionType: models.QuestConditionFriendCount,
		ConditionValue: 2, RewardPoints: 40, Active: true,
	}
	require.NoError(t, db.Create(&quest).Error)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", userID).
		Update("friend_count", 3).Error)

	w := httpDo(r, "GET", fmt.Sprintf("/users/%d/quests", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = httpDo(r, "POST", fmt.Sprintf("/quests/%d/claim", quest.ID), gin.H{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 40, decode(t, w)["reward"])

	// Second claim conflicts.
	w = httpDo(r, "POST", fmt.Sprintf("/quests/%d/claim", quest.ID), gin.H{"user_id": userID})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQuestClaimNotEligible(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "iris")

	quest := models.Quest{
		Name: "Regular", ConditionType: models.QuestConditionVisitCount,
		ConditionValue: 5, RewardPoints: 40, Active: true,
	}
	require.NoError(t, db.Create(&quest).Error)

	w := httpDo(r, "POST", fmt.Sprintf("/quests/%d/claim", quest.ID), gin.H{"user_id": userID})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRedeemCouponStatusCodes(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "judy")

	coupon := models.Coupon{
		Name: "Free Coffee", Kind: models.CouponKindReward,
		PricePoints: 30, Stock: 1, Active: true,
	}
	require.NoError(t, db.Create(&coupon).Error)

	w := httpDo(r, "POST", fmt.Sprintf("/coupons/%d/redeem", coupon.ID), gin.H{"user_id": userID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["code"])

	// Stock is gone now.
	w = httpDo(r, "POST", fmt.Sprintf("/coupons/%d/redeem", coupon.ID), gin.H{"user_id": userID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httpDo(r, "POST", "/coupons/999/redeem", gin.H{"user_id": userID})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuyItemNotOwner(t *testing.T) {
	r, db := setupRouter(t)
	ownerID := registerUser(t, r, "kate")
	buyerID := registerUser(t, r, "liam")

	spot := models.Spot{
		CreatorID: ownerID, Name: "Keep", Latitude: 1, Longitude: 1,
		TotalPointsBudget: 100, RemainingPoints: 100, RatePerMinute: 60,
		Active: true, Level: 1, OwnerID: &ownerID, TaxRatePercent: models.BaseTaxRatePercent,
	}
	require.NoError(t, db.Create(&spot).Error)
	coupon := models.Coupon{
		Name: "Shield", Kind: models.CouponKindShield,
		PricePoints: 20, Stock: 10, Active: true,
	}
	require.NoError(t, db.Create(&coupon).Error)

	w := httpDo(r, "POST", "/items/buy", gin.H{
		"user_id":   buyerID,
		"coupon_id": coupon.ID,
		"spot_id":   spot.ID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httpDo(r, "POST", "/items/buy", gin.H{
		"user_id":   ownerID,
		"coupon_id": coupon.ID,
		"spot_id":   spot.ID,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBadgesEvaluatedOnRead(t *testing.T) {
	r, db := setupRouter(t)
	userID := registerUser(t, r, "mona")

	badge := models.Badge{
		Name: "Level One", CriteriaType: models.BadgeCriteriaLevel,
		CriteriaValue: 1, Active: true,
	}
	require.NoError(t, db.Create(&badge).Error)

	w := httpDo(r, "GET", fmt.Sprintf("/users/%d/badges", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["badges"], 1)
	assert.Len(t, body["new"], 1)

	// Second read: earned, nothing new.
	w = httpDo(r, "GET", fmt.Sprintf("/users/%d/badges", userID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["badges"], 1)
	assert.Empty(t, body["new"])
}

func TestInvalidIDParam(t *testing.T) {
	r, _ := setupRouter(t)

	w := httpDo(r, "GET", "/users/abc/balance", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
