package service

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrExpired          = errors.New("expired")
	ErrValidation       = errors.New("validation failed")
	ErrDeliveryFailed   = errors.New("notification delivery failed")
)

// CapacityError is returned when a Person's memory ceiling is reached. The
// caller uses the counts to offer grove adoption.
type CapacityError struct {
	CurrentCount int
	Limit        int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("memory limit reached (%d/%d)", e.CurrentCount, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// GroveCapacityError is returned when a grove already holds treeLimit trees.
type GroveCapacityError struct {
	TreeCount int
	TreeLimit int
}

func (e *GroveCapacityError) Error() string {
	return fmt.Sprintf("grove is full (%d/%d trees)", e.TreeCount, e.TreeLimit)
}

func (e *GroveCapacityError) Unwrap() error { return ErrCapacityExceeded }

// ConflictError carries the state that blocked the mutation.
type ConflictError struct {
	Reason         string
	TransferID     string
	TransferStatus string
	ExpiresAt      *time.Time
	RootID         string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// ExpiredError reports a token or grant that lapsed.
type ExpiredError struct {
	What      string
	ExpiredAt time.Time
}

func (e *ExpiredError) Error() string {
	return e.What + " expired"
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func forbidden(reason string) error {
	return &ForbiddenError{Reason: reason}
}
