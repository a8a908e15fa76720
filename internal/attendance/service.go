package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edtrack/internal/campus"
)

// codeRetries bounds regeneration attempts on an active-code collision.
const codeRetries = 5

// Config carries the tunables for the attendance service.
type Config struct {
	// SessionTTL is how long a session accepts scans after it starts.
	SessionTTL time.Duration
	// DefaultRadiusM applies when the faculty omits a radius.
	DefaultRadiusM float64
	// FallbackLat/FallbackLon apply when the faculty omits coordinates,
	// typically the campus center.
	FallbackLat float64
	FallbackLon float64
}

// Service implements the attendance session lifecycle and mark flow.
type Service struct {
	sessions SessionStore
	records  RecordStore
	dir      *campus.Client
	cfg      Config

	now func() time.Time
}

// NewService creates a service. dir may be nil when no campus directory is
// configured; boundary validation is then skipped.
func NewService(sessions SessionStore, records RecordStore, dir *campus.Client, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 10 * time.Minute
	}
	if cfg.DefaultRadiusM <= 0 {
		cfg.DefaultRadiusM = 200
	}
	return &Service{
		sessions: sessions,
		records:  records,
		dir:      dir,
		cfg:      cfg,
		now:      time.Now,
	}
}

// StartSession opens a geofenced attendance window for a class meeting and
// returns the persisted session, code included, for QR rendering.
// Omitted coordinates fall back to the configured campus center and an
// omitted radius to the configured default.
func (s *Service) StartSession(ctx context.Context, subjectID, facultyID string, lat, lon, radiusM *float64) (Session, error) {
	if subjectID == "" {
		return Session{}, ErrUnknownSubject
	}
	if facultyID == "" {
		return Session{}, ErrUnknownFaculty
	}
	if s.dir != nil {
		if ok, err := s.dir.SubjectExists(ctx, subjectID); err != nil {
			return Session{}, fmt.Errorf("subject lookup: %w", err)
		} else if !ok {
			return Session{}, ErrUnknownSubject
		}
		if ok, err := s.dir.FacultyExists(ctx, facultyID); err != nil {
			return Session{}, fmt.Errorf("faculty lookup: %w", err)
		} else if !ok {
			return Session{}, ErrUnknownFaculty
		}
	}

	now := s.now().UTC()
	sess := Session{
		SubjectID: subjectID,
		FacultyID: facultyID,
		Lat:       s.cfg.FallbackLat,
		Lon:       s.cfg.FallbackLon,
		RadiusM:   s.cfg.DefaultRadiusM,
		Active:    true,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if lat != nil && lon != nil {
		sess.Lat, sess.Lon = *lat, *lon
	}
	if radiusM != nil && *radiusM > 0 {
		sess.RadiusM = *radiusM
	}

	// A fresh code can collide with one held by another active session;
	// regenerate rather than overwrite.
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := NewSessionCode()
		if err != nil {
			return Session{}, fmt.Errorf("generate session code: %w", err)
		}
		sess.Code = code
		created, err := s.sessions.CreateSession(ctx, sess)
		if errors.Is(err, errCodeCollision) {
			continue
		}
		if err != nil {
			return Session{}, fmt.Errorf("persist session: %w", err)
		}
		return created, nil
	}
	return Session{}, fmt.Errorf("could not allocate a unique session code after %d attempts", codeRetries)
}

// MarkAttendance validates a scanned code against expiry and geofence, then
// writes a present record exactly once per (session, student).
func (s *Service) MarkAttendance(ctx context.Context, sessionCode, studentID string, lat, lon float64) (Record, error) {
	sess, err := s.sessions.FindActiveByCode(ctx, sessionCode)
	if err != nil {
		return Record{}, fmt.Errorf("session lookup: %w", err)
	}
	if sess == nil {
		return Record{}, ErrSessionNotFound
	}
	// The active flag alone is not authoritative: nothing flips it on the
	// clock, so an expired session can still sit active in the store.
	if sess.Expired(s.now()) {
		return Record{}, ErrSessionNotFound
	}

	distance := Haversine(sess.Lat, sess.Lon, lat, lon)
	if distance > sess.RadiusM {
		return Record{}, &GeofenceError{DistanceM: distance, RadiusM: sess.RadiusM}
	}

	rec := Record{
		SessionID: sess.ID,
		StudentID: studentID,
		Status:    StatusPresent,
		Method:    MethodQR,
		Lat:       lat,
		Lon:       lon,
		DistanceM: distance,
		MarkedAt:  s.now().UTC(),
	}
	created, err := s.records.CreateRecordIfAbsent(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("persist record: %w", err)
	}
	return created, nil
}

// EndSession deactivates a session. Only the faculty member who started it
// may end it.
func (s *Service) EndSession(ctx context.Context, sessionID, facultyID string) error {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.FacultyID != facultyID {
		return ErrNotSessionOwner
	}
	return s.sessions.EndSession(ctx, sessionID)
}

// SessionForFaculty returns a session after checking ownership; used by the
// QR rendering and report endpoints.
func (s *Service) SessionForFaculty(ctx context.Context, sessionID, facultyID string) (Session, error) {
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess.FacultyID != facultyID {
		return Session{}, ErrNotSessionOwner
	}
	return sess, nil
}

// Report returns all records for a session owned by facultyID.
func (s *Service) Report(ctx context.Context, sessionID, facultyID string) ([]Record, error) {
	if _, err := s.SessionForFaculty(ctx, sessionID, facultyID); err != nil {
		return nil, err
	}
	return s.records.ListRecordsBySession(ctx, sessionID)
}
