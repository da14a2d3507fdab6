package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string

	// Current balance, never negative
	Balance decimal.Decimal
}
