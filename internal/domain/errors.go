package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrValidation        = errors.New("validation failed")
	ErrDocumentDeleted   = errors.New("document is deleted")
	ErrSyncInProgress    = errors.New("sync already in progress")
)
