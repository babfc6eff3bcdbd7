// Package core defines the fundamental types and errors for bujo.
package core

import "errors"

// Errors shared across the system. Callers branch with errors.Is.
var (
	// Provider errors
	ErrProviderUnavailable = errors.New("calendar provider not configured")
	ErrProviderRequest     = errors.New("calendar provider request failed")

	// Sync errors
	ErrSyncPushFailed = errors.New("push to calendar provider failed")

	// Storage errors
	ErrEventNotFound       = errors.New("calendar event not found")
	ErrIdeaNotFound        = errors.New("idea not found")
	ErrInboxItemNotFound   = errors.New("inbox item not found")
	ErrDuplicateExternalID = errors.New("external id already exists")

	// Validation errors
	ErrValidation = errors.New("validation failed")
)
