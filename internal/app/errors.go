package app

import "errors"

// ErrNotFound and related errors describe repository and runtime failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrConcurrentUpdate = errors.New("concurrent update")
	ErrNoChange         = errors.New("no change")
)
