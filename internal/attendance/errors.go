package attendance

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors translated to HTTP statuses at the API boundary.
var (
	// ErrSessionNotFound covers unknown, inactive and expired codes alike so a
	// scanner cannot distinguish a dead session from one that never existed.
	ErrSessionNotFound = errors.New("invalid or expired QR code")

	// ErrAlreadyMarked means a record for this (session, student) already exists.
	ErrAlreadyMarked = errors.New("attendance already marked")

	// ErrNotSessionOwner means a faculty member touched a session they did not start.
	ErrNotSessionOwner = errors.New("session belongs to another faculty member")

	// ErrUnknownSubject and ErrUnknownFaculty are boundary validation failures
	// raised only when a campus directory is configured.
	ErrUnknownSubject = errors.New("unknown subject")
	ErrUnknownFaculty = errors.New("unknown faculty")

	// errCodeCollision is returned by stores when an active session already
	// holds the generated code; the issuer retries with a fresh code.
	errCodeCollision = errors.New("active session code collision")
)

// GeofenceError reports a mark attempt outside the session's geofence.
// DistanceM carries the measured distance so the client can show it.
type GeofenceError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *GeofenceError) Error() string {
	return fmt.Sprintf("outside the campus geofence (%.0f m away, radius %.0f m)", e.DistanceM, e.RadiusM)
}

// Distance returns the measured distance rounded to the nearest meter.
func (e *GeofenceError) Distance() int {
	return int(math.Round(e.DistanceM))
}
