package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EntryCategoryTopup    = "topup"
	EntryCategoryPurchase = "purchase"
	EntryCategoryRefund   = "refund"
)

// LedgerEntry is an immutable record of a balance-affecting event.
// Amount is signed: positive credits the account, negative debits it.
// The sum of an account's entries must equal its current balance.
type LedgerEntry struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Category    string
	Description string
}
