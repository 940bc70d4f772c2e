package exchange

import "errors"

var (
	ErrUnknownAsset                   = errors.New("token is not registered")
	ErrAlreadyRegistered              = errors.New("token is already registered")
	ErrInvalidParameter               = errors.New("parameter is out of range")
	ErrInvalidAmount                  = errors.New("amount is invalid")
	ErrInsufficientFreeBalance        = errors.New("insufficient free balance")
	ErrOrderNotFound                  = errors.New("order not found")
	ErrUnauthorized                   = errors.New("caller is not the owner")
	ErrExceedsOrderRemaining          = errors.New("quantity exceeds order remaining")
	ErrTransferFailed                 = errors.New("token transfer failed")
	ErrInvalidCommissionConfiguration = errors.New("commission exceeds trade value")
)
