package errs

import (
	"errors"
	"fmt"
)

type HttpError struct {
	Code    int
	Message string
	Data    any
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("code %d: %s, data: %v", e.Code, e.Message, e.Data)
}

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrPoolExhausted   = errors.New("no unused cards left in the pool")
	ErrDuplicateCard   = errors.New("card already exists in the pool")
	ErrMalformedRecord = errors.New("malformed card record")
	ErrAlreadyResolved = errors.New("order already resolved")
	ErrNoCardAssigned  = errors.New("order has no card assigned")
	ErrCardAssigned    = errors.New("order already has a card")
	ErrSessionExpired  = errors.New("ingest session expired")
)

// InsufficientFundsError carries enough detail for staff to act on it.
type InsufficientFundsError struct {
	BalanceCents  int64
	RequiredCents int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d, required %d", e.BalanceCents, e.RequiredCents)
}
