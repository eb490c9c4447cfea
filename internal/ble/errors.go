package ble

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoPeripheral is returned when an operation needs a selected peripheral.
	ErrNoPeripheral = errors.New("ble: no peripheral selected")
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrCharacteristicNotFound matches any NotFoundError for a characteristic.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// TransientConnectionError is a single failed connection attempt. The
// manager retries these.
type TransientConnectionError struct {
	Address string
	Attempt int
	Err     error
}

func (e *TransientConnectionError) Error() string {
	return fmt.Sprintf("ble: connect to %s (attempt %d): %v", e.Address, e.Attempt, e.Err)
}

func (e *TransientConnectionError) Unwrap() error { return e.Err }

// NotFoundError reports a missing service or characteristic.
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // [service] or [service, characteristic]
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("ble: %s not found", e.Resource)
	case 1:
		return fmt.Sprintf("ble: %s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("ble: %s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrCharacteristicNotFound && strings.EqualFold(e.Resource, "characteristic")
}

// SubscriptionError means notifications could not be enabled. The
// connection is torn down when it happens.
type SubscriptionError struct {
	Characteristic string
	Err            error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("ble: subscribe to %s: %v", e.Characteristic, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// UnexpectedDisconnect is the teardown cause when the link drops and a
// reconnect attempt fails.
type UnexpectedDisconnect struct {
	Address string
	Err     error
}

func (e *UnexpectedDisconnect) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ble: %s disconnected unexpectedly", e.Address)
	}
	return fmt.Sprintf("ble: %s disconnected unexpectedly: %v", e.Address, e.Err)
}

func (e *UnexpectedDisconnect) Unwrap() error { return e.Err }
