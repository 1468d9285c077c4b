package domain

import "github.com/smallbiznis/stockbook/internal/apperror"

var (
	ErrInvalidMovement  = apperror.Validation("invalid movement type")
	ErrZeroDelta        = apperror.Validation("ledger quantity delta must not be zero")
	ErrNegativeStock    = apperror.Validation("ledger stock_after must not be negative")
	ErrInvalidProduct   = apperror.Validation("ledger entry requires a product")
	ErrMissingTimestamp = apperror.Validation("ledger entry requires a timestamp")
)
