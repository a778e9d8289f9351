package store

import "errors"

// Sentinel errors returned by store mutations. Handlers map these to HTTP
// statuses; the store never wraps them with request context.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrDuplicateMember     = errors.New("member already exists")
	ErrLastOwner           = errors.New("channel must retain at least one owner")
	ErrEmptyContent        = errors.New("message content is empty")
	ErrThreadCrossChannel  = errors.New("parent message belongs to a different channel")
	ErrInvalidResourceType = errors.New("invalid resource type")
	ErrEmptyResourceID     = errors.New("resource id is empty")
	ErrAlreadyDeleted      = errors.New("message already deleted")
)
