package model

import "errors"

var (
	// ErrNotFound is returned when an item, user, or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRevisionNotFound is returned when a revision no longer exists.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrNotApprovable is returned when approving an item outside the approval workflow.
	ErrNotApprovable = errors.New("item is not approvable")

	// ErrPermissionDenied is returned when the actor may not approve the item.
	ErrPermissionDenied = errors.New("permission denied")
)
