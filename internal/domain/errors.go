package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrHoldClosed          = errors.New("hold already settled or released")
	ErrDuplicateOperation  = errors.New("duplicate operation")
)
