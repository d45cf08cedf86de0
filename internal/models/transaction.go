package models

import (
	"gorm.io/gorm"
)

// Transaction kinds
const (
	TxKindEarn    = "earn"
	TxKindSpend   = "spend"
	TxKindInitial = "initial"
)

// Transaction is one immutable ledger entry. Positive amounts are earns,
// negative amounts are spends. Rows are append-only; nothing updates or
// deletes them after insert.
type Transaction struct {
	gorm.Model
	UserID      uint   `gorm:"index;not null"`
	Amount      int64  `gorm:"not null"`
	Kind        string `gorm:"size:16;index;not null"`
	Description string
}
