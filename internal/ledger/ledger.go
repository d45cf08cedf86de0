// Package ledger owns wallet balances and the append-only transaction log.
// Every balance mutation is a guarded update paired with a ledger append in
// the same database transaction, so a wallet's balance always equals the sum
// of its entries and can never go negative.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/metrics"
	"github.com/wnt/turfpoints/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientFunds is returned when a debit's balance guard fails.
	// A debit that lost a race for the last points reports the same way; to
	// the caller the outcome is identical.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrWalletNotFound is returned when the user has no wallet.
	ErrWalletNotFound = errors.New("wallet not found")
)

// Credit increases a wallet's balance and appends the matching ledger entry
// inside the given transaction handle. amount must be positive.
func Credit(tx *gorm.DB, userID uint, amount int64, kind, description string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	res := tx.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance + ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrWalletNotFound
	}

	entry := models.Transaction{
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Debit decreases a wallet's balance inside the given transaction handle.
// The update is guarded by balance >= amount in the same statement; when the
// guard matches no row the debit is rejected with ErrInsufficientFunds and
// nothing is written.
func Debit(tx *gorm.DB, userID uint, amount int64, kind, description string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":             gorm.Expr("balance - ?", amount),
			"last_transaction_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to debit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Wallet{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up wallet: %w", err)
		}
		if count == 0 {
			return ErrWalletNotFound
		}
		return ErrInsufficientFunds
	}

	entry := models.Transaction{
		UserID:      userID,
		Amount:      -amount,
		Kind:        kind,
		Description: description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Service wraps the ledger primitives with their own transaction boundary
// for callers that are not already inside one.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a new ledger service
func NewService(db *gorm.DB, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.WithComponent(log, "ledger"),
	}
}

// OpenWallet creates a wallet seeded with the welcome balance and its
// initial ledger entry inside the caller's transaction.
func OpenWallet(tx *gorm.DB, userID uint, welcomeBalance int64) (*models.Wallet, error) {
	wallet := models.Wallet{
		UserID:            userID,
		Balance:           welcomeBalance,
		LastTransactionAt: time.Now().UTC(),
	}
	if err := tx.Create(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	if welcomeBalance > 0 {
		entry := models.Transaction{
			UserID:      userID,
			Amount:      welcomeBalance,
			Kind:        models.TxKindInitial,
			Description: "Welcome balance",
		}
		if err := tx.Create(&entry).Error; err != nil {
			return nil, fmt.Errorf("failed to append ledger entry: %w", err)
		}
	}
	return &wallet, nil
}

// CreateWallet opens a wallet for a new user in its own transaction.
func (s *Service) CreateWallet(ctx context.Context, userID uint, welcomeBalance int64) (*models.Wallet, error) {
	var wallet *models.Wallet
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		wallet, err = OpenWallet(tx, userID, welcomeBalance)
		return err
	})
	if err != nil {
		return nil, err
	}

	userLogger := logger.WithUser(s.logger, userID)
	userLogger.Info().
		Int64("balance", welcomeBalance).
		Msg("Wallet created")
	return wallet, nil
}

// Credit applies a standalone credit in its own transaction.
func (s *Service) Credit(ctx context.Context, userID uint, amount int64, kind, description string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return Credit(tx, userID, amount, kind, description)
	})
	if err != nil {
		metrics.RecordLedgerOperation("credit", "failed")
		return err
	}
	metrics.RecordLedgerOperation("credit", "success")
	return nil
}

// Debit applies a standalone debit in its own transaction.
func (s *Service) Debit(ctx context.Context, userID uint, amount int64, kind, description string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return Debit(tx, userID, amount, kind, description)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.RecordLedgerOperation("debit", "rejected")
		} else {
			metrics.RecordLedgerOperation("debit", "failed")
		}
		return err
	}
	metrics.RecordLedgerOperation("debit", "success")
	return nil
}

// Balance returns the current wallet balance for a user.
func (s *Service) Balance(ctx context.Context, userID uint) (int64, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrWalletNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load wallet: %w", err)
	}
	return wallet.Balance, nil
}

// Ledger returns one page of a user's transactions, newest first, along with
// the total entry count so callers can restart pagination.
func (s *Service) Ledger(ctx context.Context, userID uint, page, pageSize int) ([]models.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	var entries []models.Transaction
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return entries, total, nil
}
