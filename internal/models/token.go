package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Token is a single-use credential redeemable for exactly one gated request.
// Used flips false->true at most once and never back; redeemed tokens are
// kept as an audit trail.
type Token struct {
	ID        uuid.UUID
	CreatedAt time.Time
	AccountID uuid.UUID
	Price     decimal.Decimal
	Used      bool
	UsedAt    *time.Time
}
