package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrEventNotFound        = fmt.Errorf("event %w", ErrNotFound)
	ErrOrderNotFound        = fmt.Errorf("order %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrTicketNotFound       = fmt.Errorf("ticket %w", ErrNotFound)
	ErrTicketTypeNotFound   = fmt.Errorf("ticket type %w", ErrNotFound)
	ErrInvalidID            = errors.New("invalid id")
	ErrValidation           = errors.New("validation failed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrEmailTaken           = fmt.Errorf("email already in use: %w", ErrConflict)
	ErrInvalidCredentials   = fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
	ErrInvalidCode          = fmt.Errorf("invalid or expired verification code: %w", ErrValidation)
	ErrEventNotOnSale       = fmt.Errorf("event is not on sale: %w", ErrConflict)
	ErrOrderNotPending      = fmt.Errorf("order is no longer pending: %w", ErrConflict)
	ErrTicketNotPaid        = fmt.Errorf("ticket is not paid: %w", ErrConflict)
	ErrInsufficientTickets  = fmt.Errorf("insufficient tickets: %w", ErrConflict)
	ErrAlreadyScanned       = fmt.Errorf("ticket already scanned: %w", ErrConflict)
	ErrInvalidTransition    = fmt.Errorf("invalid status transition: %w", ErrConflict)
	ErrEventHasSales        = fmt.Errorf("event has completed orders: %w", ErrConflict)
	ErrInvalidWebhook       = fmt.Errorf("invalid webhook signature: %w", ErrUnauthorized)
	ErrVerificationInFlight = fmt.Errorf("payment verification already in progress: %w", ErrConflict)
)

// InsufficientTicketsError names the ticket type that could not cover a checkout line.
type InsufficientTicketsError struct {
	TicketTypeID string
	Name         string
	Requested    int
	Available    int
}

func (e *InsufficientTicketsError) Error() string {
	return fmt.Sprintf("only %d %q tickets left, requested %d", e.Available, e.Name, e.Requested)
}

func (e *InsufficientTicketsError) Unwrap() error { return ErrInsufficientTickets }

// AlreadyScannedError carries the first scan of a ticket.
type AlreadyScannedError struct {
	TicketID  string
	ScannedAt time.Time
	ScannedBy string
}

func (e *AlreadyScannedError) Error() string {
	return fmt.Sprintf("ticket %s already scanned at %s", e.TicketID, e.ScannedAt.Format(time.RFC3339))
}

func (e *AlreadyScannedError) Unwrap() error { return ErrAlreadyScanned }

// ValidationError wraps a user facing validation message.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
