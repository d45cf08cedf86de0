package models

import (
	"time"

	"gorm.io/gorm"
)

// Wallet holds a user's point balance. The balance is only ever touched
// through guarded updates in the ledger service and must stay equal to the
// sum of the user's Transaction rows.
type Wallet struct {
	gorm.Model
	UserID            uint  `gorm:"uniqueIndex;not null"`
	Balance           int64 `gorm:"not null;default:0"`
	LastTransactionAt time.Time

	// Relationships
	Transactions []Transaction `gorm:"foreignKey:UserID;references:UserID"`
}
