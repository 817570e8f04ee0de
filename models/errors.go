package models

import "errors"

// Error taxonomy shared by the lifecycle engine, engagement ledger and
// escalation loops. Callers classify with errors.Is and map to transport
// codes at the edge.
var (
	// ErrInvalidInput marks a missing or malformed required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyUpvoted marks a duplicate upvote by the same user.
	ErrAlreadyUpvoted = errors.New("already upvoted")

	// ErrInvalidAssignment marks an assign call that supplied neither or
	// both of department and worker.
	ErrInvalidAssignment = errors.New("invalid assignment")

	// ErrTerminalState marks an attempted mutation of a resolved or
	// rejected report.
	ErrTerminalState = errors.New("report is in a terminal state")

	// ErrExternalDependency marks an isolated collaborator failure (media
	// store, forecast provider, notifier).
	ErrExternalDependency = errors.New("external dependency failure")
)
