// Package domain defines the error taxonomy shared by the circle, membership
// and transfer services. Sentinel errors let the HTTP layer map internal
// outcomes to status codes without inspecting message strings.
package domain

import "errors"

var (
	// ErrValidation covers malformed input: bad capacity bounds, an unknown
	// payment status, a transfer reason over the length limit.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced circle, membership, user or
	// transfer request does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the caller lacks the required role
	// relative to the target entity (e.g. not the target circle's facilitator).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidStateTransition is returned for operations not valid from the
	// entity's current state, including any attempt to move a circle along a
	// disallowed status edge or to re-decide a terminal transfer request.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrCapacityExceeded is returned when a circle cannot accept another
	// active member.
	ErrCapacityExceeded = errors.New("circle capacity exceeded")

	// ErrDuplicateMembership is returned when the user already holds an active
	// membership, either in the target circle or anywhere else (a user belongs
	// to at most one circle at a time).
	ErrDuplicateMembership = errors.New("duplicate membership")

	// ErrDuplicatePendingRequest is returned when a pending transfer request
	// already exists for the same requester and target circle.
	ErrDuplicatePendingRequest = errors.New("duplicate pending transfer request")

	// ErrNotAMember is returned when a transfer is requested by a user with no
	// active membership.
	ErrNotAMember = errors.New("requester has no active membership")

	// ErrSameCircleTransfer is returned when the transfer target equals the
	// requester's current circle.
	ErrSameCircleTransfer = errors.New("cannot transfer to the same circle")

	// ErrInfrastructure wraps unexpected persistence-layer failures. Callers
	// decide retry policy; the services never retry on their own.
	ErrInfrastructure = errors.New("infrastructure error")
)
