package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrInvalidPayload = errors.New("invalid payload")
)
