package attendance

import "time"

// Record statuses. Only StatusPresent is written by the QR flow; the rest
// come from manual roll-call edits made elsewhere in EdTrack.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// Verification methods.
const (
	MethodQR     = "qr"
	MethodManual = "manual"
	MethodFace   = "face"
)

// Session is one time-boxed, geofenced attendance window for a class meeting.
// Sessions are never deleted; they go inactive explicitly or lapse at ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	FacultyID string    `json:"faculty_id"`
	Code      string    `json:"qr_code"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	RadiusM   float64   `json:"radius_m"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has lapsed regardless of the Active flag.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Record is a single student's presence for one session. Immutable once written;
// at most one exists per (session, student), enforced by the store.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Status    string    `json:"status"`
	Method    string    `json:"method"`
	Lat       float64   `json:"latitude"`
	Lon       float64   `json:"longitude"`
	DistanceM float64   `json:"distance_m"`
	MarkedAt  time.Time `json:"marked_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary holds the cheap per-session counters maintained by the worker.
type Summary struct {
	Present      int64      `json:"present"`
	LastMarkedAt *time.Time `json:"last_marked_at,omitempty"`
}
