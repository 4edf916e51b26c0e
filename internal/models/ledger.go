package models

import "time"

type LedgerKind string

const (
	LedgerDebit  LedgerKind = "debit"
	LedgerCredit LedgerKind = "credit"
)

// LedgerEntry records every balance movement the engine causes. Reference is
// unique and doubles as the idempotency key: a retried debit or credit with
// the same reference is a no-op.
type LedgerEntry struct {
	ID        int64      `gorm:"primaryKey,autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	Kind      LedgerKind `gorm:"not null" json:"kind"`
	Amount    float64    `gorm:"not null" json:"amount"`
	Reference string     `gorm:"uniqueIndex;not null" json:"reference"`
	CreatedAt time.Time  `json:"created_at"`
}

// WalletAccount holds a user balance. It belongs to the wallet adapter and is
// only ever mutated through the debit/credit contract.
type WalletAccount struct {
	UserID    int64     `gorm:"primaryKey" json:"user_id"`
	Balance   float64   `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `json:"-"`
}
