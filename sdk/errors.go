package orca

import "fmt"

// ValidationError is a local, pre-flight rejection. It never reaches
// the network.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AuthError means the session credential is missing or expired. It is
// terminal: the caller must re-authenticate, the client never retries.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// CapacityError is a 503-class rejection of a background send. Unlike
// a ValidationError it is retryable at the caller's discretion.
type CapacityError struct {
	Message string
}

func (e *CapacityError) Error() string { return e.Message }

// NotFoundError is a 404-class response to a job lookup.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// DispatchError is any other non-2xx outcome, carrying the
// collaborator's reported message verbatim when one was supplied.
type DispatchError struct {
	Status  int
	Message string
}

func (e *DispatchError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("dispatch failed: HTTP %d", e.Status)
}

// NetworkError is a transport-level failure: the collaborator was
// unreachable. Instant sends degrade to a demo result instead of
// surfacing this; every other operation propagates it.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
