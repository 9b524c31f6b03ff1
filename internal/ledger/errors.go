package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSubjectNotFound     = errors.New("subject not found")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrBelowMinimum        = errors.New("withdrawal below minimum")
	ErrInvariantViolation  = errors.New("ledger invariant violation")
	ErrAlreadyExists       = errors.New("already exists")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientBalanceError carries the context needed to explain a refusal.
type InsufficientBalanceError struct {
	Subject   Subject
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %d, requested %d",
		e.Subject, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

type BelowMinimumError struct {
	Minimum   int64
	Requested int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("withdrawal of %d tokens is below the minimum of %d", e.Requested, e.Minimum)
}

func (e *BelowMinimumError) Unwrap() error {
	return ErrBelowMinimum
}

type InvalidTransitionError struct {
	WithdrawalID uuid.UUID
	From         WithdrawalStatus
	To           WithdrawalStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("withdrawal %s: cannot move from %s to %s", e.WithdrawalID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// InvariantViolationError signals a bug: the ledger and a balance disagree
// or an entry's arithmetic does not hold. It is never a user mistake.
type InvariantViolationError struct {
	Subject Subject
	Detail  string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation for %s: %s", e.Subject, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrBelowMinimum)
}
