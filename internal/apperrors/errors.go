package apperrors

import (
	"errors"
)

var (
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCategory   = errors.New("invalid ledger category")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrTokenNotFound    = errors.New("token not found")
	ErrTokenAlreadyUsed = errors.New("token already used")
)
