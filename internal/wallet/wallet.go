package wallet

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/pkg/logger"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

// Wallet is the debit/credit contract the engine holds against the platform
// wallet. Both operations are atomic inside the caller's transaction and
// idempotent by reference: replaying a reference moves no money twice.
type Wallet interface {
	Debit(tx *gorm.DB, userID int64, amount float64, reference string) error
	Credit(tx *gorm.DB, userID int64, amount float64, reference string) error
	Balance(tx *gorm.DB, userID int64) (float64, error)
}

// LedgerWallet is the gorm-backed adapter: balances live in wallet_accounts,
// every movement leaves a LedgerEntry whose unique reference is the
// idempotency key.
type LedgerWallet struct {
	db *gorm.DB
}

func NewLedgerWallet(db *gorm.DB) *LedgerWallet {
	return &LedgerWallet{db: db}
}

func (w *LedgerWallet) Debit(tx *gorm.DB, userID int64, amount float64, reference string) error {
	if tx == nil {
		tx = w.db
	}

	entry := models.LedgerEntry{
		UserID:    userID,
		Kind:      models.LedgerDebit,
		Amount:    amount,
		Reference: reference,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if isDuplicateErr(err) {
			// Already applied under this reference.
			return nil
		}
		return logger.WrapError(err, "")
	}

	// Conditional decrement: the balance check and the write are one
	// statement, never a read followed by a write.
	res := tx.Model(&models.WalletAccount{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return logger.WrapError(res.Error, "")
	}
	if res.RowsAffected == 0 {
		// Missing account or not enough funds; the transaction rollback
		// discards the ledger entry as well.
		return ErrInsufficientBalance
	}

	return nil
}

func (w *LedgerWallet) Credit(tx *gorm.DB, userID int64, amount float64, reference string) error {
	if tx == nil {
		tx = w.db
	}

	entry := models.LedgerEntry{
		UserID:    userID,
		Kind:      models.LedgerCredit,
		Amount:    amount,
		Reference: reference,
	}
	if err := tx.Create(&entry).Error; err != nil {
		if isDuplicateErr(err) {
			return nil
		}
		return logger.WrapError(err, "")
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("wallet_accounts.balance + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(&models.WalletAccount{
		UserID:  userID,
		Balance: amount,
	}).Error
	if err != nil {
		return logger.WrapError(err, "")
	}

	return nil
}

func (w *LedgerWallet) Balance(tx *gorm.DB, userID int64) (float64, error) {
	if tx == nil {
		tx = w.db
	}

	var account models.WalletAccount
	err := tx.First(&account, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, logger.WrapError(err, "")
	}

	return account.Balance, nil
}

// isDuplicateErr recognizes a unique-constraint violation across the
// postgres and sqlite dialects gorm translates differently.
func isDuplicateErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
