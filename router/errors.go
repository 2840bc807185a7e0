package router

import "errors"

// Route table errors
var (
	ErrEmptyPath       = errors.New("route path is empty")
	ErrDuplicateRoute  = errors.New("duplicate route path")
	ErrIncompleteRoute = errors.New("route needs a remote entry and an exposed name")
	ErrInvalidDefault  = errors.New("default redirect has no route")
	ErrNoRoute         = errors.New("no route for path")
)

// Active view errors
var (
	ErrNoActiveUnit  = errors.New("no active unit")
	ErrUnknownAction = errors.New("unknown action")
	ErrClosed        = errors.New("resolver closed")
)
