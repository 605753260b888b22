package model

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrSessionStopped  = errors.New("session stopped")
	ErrRegistryStopped = errors.New("subscription registry stopped")
)

var (
	_ error = TransportError{}
	_ error = OrphanInstanceError{}
	_ error = UnrecognizedProtocolError{}
	_ error = InvariantViolationError{}
)

type TransportError struct {
	RegType string
	Domain  string
	Err     error
}

func (err TransportError) Error() string {
	return fmt.Sprintf("transport failure browsing %q in %q: %v", err.RegType, err.Domain, err.Err)
}

func (err TransportError) Unwrap() error {
	return err.Err
}

type OrphanInstanceError struct {
	LookupKey string
}

func (err OrphanInstanceError) Error() string {
	return fmt.Sprintf("instance event for unknown registration type %s", err.LookupKey)
}

type UnrecognizedProtocolError struct {
	Protocol string
}

func (err UnrecognizedProtocolError) Error() string {
	return fmt.Sprintf("unrecognized protocol suffix %s", err.Protocol)
}

type InvariantViolationError struct {
	Key   string
	Count int
}

func (err InvariantViolationError) Error() string {
	return fmt.Sprintf("live instance count of %s went negative: %d", err.Key, err.Count)
}
