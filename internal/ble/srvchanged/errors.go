package srvchanged

import "errors"

var (
	// ErrInvalidArgument is returned for a nil handler.
	ErrInvalidArgument = errors.New("srvchanged: invalid argument")
	// ErrInvalidState is returned when the client is not initialized or
	// has no active connection.
	ErrInvalidState = errors.New("srvchanged: invalid state")
	// ErrNotFound is returned when the characteristic has not been discovered.
	ErrNotFound = errors.New("srvchanged: characteristic not found")
)
