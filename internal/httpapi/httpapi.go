// Package httpapi exposes the game over HTTP. Handlers stay thin: bind,
// call the service, translate sentinel errors to status codes.
package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/badges"
	"github.com/wnt/turfpoints/internal/ledger"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/models"
	"github.com/wnt/turfpoints/internal/quests"
	"github.com/wnt/turfpoints/internal/shop"
	"github.com/wnt/turfpoints/internal/spots"
	"github.com/wnt/turfpoints/internal/visits"
	"gorm.io/gorm"
)

// Server wires the services behind the HTTP routes.
type Server struct {
	db             *gorm.DB
	ledger         *ledger.Service
	visits         *visits.Service
	spots          *spots.Service
	quests         *quests.Service
	badges         *badges.Service
	shop           *shop.Service
	welcomeBalance int64
	logger         zerolog.Logger
}

// NewServer creates a new API server
func NewServer(
	db *gorm.DB,
	ledgerSvc *ledger.Service,
	visitSvc *visits.Service,
	spotSvc *spots.Service,
	questSvc *quests.Service,
	badgeSvc *badges.Service,
	shopSvc *shop.Service,
	welcomeBalance int64,
	log zerolog.Logger,
) *Server {
	return &Server{
		db:             db,
		ledger:         ledgerSvc,
		visits:         visitSvc,
		spots:          spotSvc,
		quests:         questSvc,
		badges:         badgeSvc,
		shop:           shopSvc,
		welcomeBalance: welcomeBalance,
		logger:         logger.WithComponent(log, "httpapi"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)

	r.POST("/users", s.registerUser)
	r.GET("/users/:id/balance", s.getBalance)
	r.GET("/users/:id/ledger", s.getLedger)
	r.GET("/users/:id/quests", s.getQuests)
	r.GET("/users/:id/badges", s.getBadges)

	r.POST("/spots", s.createSpot)
	r.GET("/spots/:id", s.getSpot)

	r.POST("/checkin", s.checkIn)
	r.POST("/visits/:id/heartbeat", s.heartbeat)
	r.POST("/visits/:id/checkout", s.checkout)

	r.POST("/quests/:id/claim", s.claimQuest)
	r.POST("/coupons/:id/redeem", s.redeemCoupon)
	r.POST("/items/buy", s.buyItem)
	r.POST("/funding/confirm", s.confirmFunding)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps business sentinels to 4xx and everything else to 500.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrWalletNotFound),
		errors.Is(err, spots.ErrSpotNotFound),
		errors.Is(err, visits.ErrSpotNotFound),
		errors.Is(err, quests.ErrQuestNotFound),
		errors.Is(err, shop.ErrCouponNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shop.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, shop.ErrOutOfStock),
		errors.Is(err, shop.ErrCouponInactive),
		errors.Is(err, quests.ErrAlreadyClaimed),
		errors.Is(err, visits.ErrInvalidSession):
		status = http.StatusConflict
	case errors.Is(err, visits.ErrTooFar),
		errors.Is(err, quests.ErrNotEligible),
		errors.Is(err, shop.ErrWrongCouponKind):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

type registerUserReq struct {
	Username string `json:"username" binding:"required"`
	Premium  bool   `json:"premium"`
}

func (s *Server) registerUser(c *gin.Context) {
	var req registerUserReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := models.User{Username: req.Username, Premium: req.Premium, Level: 1}
	var wallet *models.Wallet
	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		var err error
		wallet, err = ledger.OpenWallet(tx, user.ID, s.welcomeBalance)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"level":    user.Level,
		"balance":  wallet.Balance,
	})
}

func (s *Server) getBalance(c *gin.Context) {
	userID, ok := idParam(c)
	if !ok {
		return
	}
	balance, err := s.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": balance})
}

func (s *Server) getLedger(c *gin.Context) {
	userID, ok := idParam(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	entries, total, err := s.ledger.Ledger(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
		"page":    page,
	})
}

func (s *Server) getQuests(c *gin.Context) {
	userID, ok := idParam(c)
	if !ok {
		return
	}
	progress, err := s.quests.EvaluateProgress(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": progress})
}

func (s *Server) getBadges(c *gin.Context) {
	userID, ok := idParam(c)
	if !ok {
		return
	}
	// Evaluate first so a freshly crossed threshold shows up in the answer.
	unlocked, err := s.badges.CheckUnlocks(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	earned, err := s.badges.Earned(c.Request.Context(), userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"badges": earned, "new": unlocked})
}

type createSpotReq struct {
	CreatorID     uint    `json:"creator_id" binding:"required"`
	Name          string  `json:"name" binding:"required"`
	Latitude      float64 `json:"latitude" binding:"required"`
	Longitude     float64 `json:"longitude" binding:"required"`
	Budget        int64   `json:"budget" binding:"required,gt=0"`
	RatePerMinute int     `json:"rate_per_minute" binding:"required,gt=0"`
}

func (s *Server) createSpot(c *gin.Context) {
	var req createSpotReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	spot, err := s.spots.Create(c.Request.Context(), req.CreatorID, req.Name,
		req.Latitude, req.Longitude, req.Budget, req.RatePerMinute)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, spot)
}

func (s *Server) getSpot(c *gin.Context) {
	spotID, ok := idParam(c)
	if !ok {
		return
	}
	spot, err := s.spots.Get(c.Request.Context(), spotID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, spot)
}

type checkInReq struct {
	UserID    uint    `json:"user_id" binding:"required"`
	SpotID    uint    `json:"spot_id" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
}

func (s *Server) checkIn(c *gin.Context) {
	var req checkInReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	visit, err := s.visits.CheckIn(c.Request.Context(), req.UserID, req.SpotID,
		req.Latitude, req.Longitude)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, visit)
}

func (s *Server) heartbeat(c *gin.Context) {
	visitID, ok := idParam(c)
	if !ok {
		return
	}
	result, err := s.visits.Heartbeat(c.Request.Context(), visitID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type checkoutReq struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (s *Server) checkout(c *gin.Context) {
	visitID, ok := idParam(c)
	if !ok {
		return
	}
	var req checkoutReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.visits.Checkout(c.Request.Context(), visitID, req.UserID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type claimQuestReq struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (s *Server) claimQuest(c *gin.Context) {
	questID, ok := idParam(c)
	if !ok {
		return
	}
	var req claimQuestReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reward, err := s.quests.ClaimReward(c.Request.Context(), req.UserID, questID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reward": reward})
}

type redeemCouponReq struct {
	UserID uint `json:"user_id" binding:"required"`
}

func (s *Server) redeemCoupon(c *gin.Context) {
	couponID, ok := idParam(c)
	if !ok {
		return
	}
	var req redeemCouponReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code, err := s.shop.RedeemCoupon(c.Request.Context(), req.UserID, couponID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": code})
}

type buyItemReq struct {
	UserID   uint `json:"user_id" binding:"required"`
	CouponID uint `json:"coupon_id" binding:"required"`
	SpotID   uint `json:"spot_id" binding:"required"`
}

func (s *Server) buyItem(c *gin.Context) {
	var req buyItemReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.shop.BuyGameItem(c.Request.Context(), req.UserID, req.CouponID, req.SpotID); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type confirmFundingReq struct {
	UserID    uint   `json:"user_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"`
}

// confirmFunding is the hook for the external payment collaborator. Credits
// land through the normal ledger path so conservation holds.
func (s *Server) confirmFunding(c *gin.Context) {
	var req confirmFundingReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := s.ledger.Credit(c.Request.Context(), req.UserID, req.Amount,
		models.TxKindEarn, "Funding: "+req.Reference)
	if err != nil {
		s.fail(c, err)
		return
	}
	balance, err := s.ledger.Balance(c.Request.Context(), req.UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}
