package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrPositionExists    = errors.New("open position already exists")
	ErrPositionNotOpen   = errors.New("position is not open")
	ErrForbidden         = errors.New("position owned by another user")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrInvalidLeverage   = errors.New("leverage not allowed")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrNotWhitelisted    = errors.New("token not whitelisted")
	ErrLockHeld          = errors.New("lock already held")
	ErrLockBusy          = errors.New("lock busy, try again")
	ErrSourceDown        = errors.New("price source unavailable")
)
