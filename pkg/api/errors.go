package api

import "errors"

// Error classes shared by every layer. Components wrap these with context so
// callers can branch with errors.Is.
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrRemoteFetch       = errors.New("remote fetch failed")
	ErrRender            = errors.New("render failed")
	ErrPersistence       = errors.New("persistence failed")
	ErrNotFound          = errors.New("not found")
)
