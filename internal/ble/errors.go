package ble

import "github.com/pkg/errors"

var (
	ErrAlreadyRegistered = errors.New("ble: service already registered for discovery")
	ErrRegistryFull      = errors.New("ble: too many services registered for discovery")
	ErrUnknownConn       = errors.New("ble: unknown connection handle")
	ErrUnknownHandle     = errors.New("ble: unknown attribute handle")
	ErrWriteNotPermitted = errors.New("ble: attribute is not writable")
	ErrInvalidCCCDWrite  = errors.New("ble: invalid cccd write")
	ErrServiceNotFound   = errors.New("ble: service not found")
	ErrStackClosed       = errors.New("ble: stack closed")
)
