package domain

import "github.com/smallbiznis/stockbook/internal/apperror"

var (
	ErrEmptyCart         = apperror.Validation("sale must have at least one line")
	ErrInvalidQty        = apperror.Validation("quantity must be greater than zero")
	ErrInvalidUnitPrice  = apperror.Validation("unit price must be greater than zero")
	ErrProductNotFound   = apperror.NotFound("product not found or inactive")
	ErrInsufficientStock = apperror.New(apperror.KindInsufficientStock, "insufficient stock")
	ErrFxUnavailable     = apperror.New(apperror.KindFxUnavailable, "exchange rate unavailable; set one manually")
	ErrNotFound          = apperror.NotFound("sale not found")
	ErrInvalidRange      = apperror.Validation("range start must not be after its end")
)
