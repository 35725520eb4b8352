package domain

import "errors"

// ErrNotFound is returned by repo and service functions when the requested
// resource does not exist in the database. The itinerary store also returns it
// when an item was deleted concurrently with a pending local update.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails business rule validation
// (e.g. blank title, ends_at before starts_at).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUnauthorized is returned when the caller's trip role does not allow the
// requested operation. Handlers should map this to HTTP 403.
var ErrUnauthorized = errors.New("unauthorized")

// ErrConflict is returned when a write presented a stale revision: someone
// else modified the item between the caller's read and write.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrSyncFailed is returned by the itinerary store when a write could not be
// delivered to the backend within the retry budget. Nobody else changed the
// data; the optimistic change was rolled back.
var ErrSyncFailed = errors.New("sync failed")

// ErrBusy is returned by the itinerary store when a mutation is requested on
// an item that already has a mutation in flight.
var ErrBusy = errors.New("busy")

// IsLogical reports whether err is one of the domain outcomes above, as
// opposed to a transport or infrastructure failure. Logical errors are never
// retried.
func IsLogical(err error) bool {
	for _, target := range []error{ErrNotFound, ErrValidation, ErrUnauthorized, ErrConflict, ErrBusy} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
