package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists sessions and records in Postgres. It implements both
// SessionStore and RecordStore.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSession writes a new session row.
func (r *Repository) CreateSession(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions
			(id, subject_id, faculty_id, code, lat, lon, radius_m, active, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at
	`, s.ID, s.SubjectID, s.FacultyID, s.Code, s.Lat, s.Lon, s.RadiusM, s.Active, s.CreatedAt, s.ExpiresAt)
	if err := row.Scan(&s.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Session{}, errCodeCollision
		}
		return Session{}, err
	}
	return s, nil
}

// FindActiveByCode returns the active session carrying code, nil when none.
func (r *Repository) FindActiveByCode(ctx context.Context, code string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject_id, faculty_id, code, lat, lon, radius_m, active, created_at, expires_at
		FROM attendance_sessions
		WHERE code = $1 AND active = TRUE
	`, code)
	var s Session
	if err := scanSession(row, &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// GetSession returns a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject_id, faculty_id, code, lat, lon, radius_m, active, created_at, expires_at
		FROM attendance_sessions WHERE id = $1
	`, id)
	var s Session
	if err := scanSession(row, &s); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return s, nil
}

// EndSession flips a session inactive.
func (r *Repository) EndSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET active = FALSE WHERE id = $1
	`, id)
	return err
}

// CreateRecordIfAbsent inserts the record, relying on the unique index on
// (session_id, student_id) to reject duplicates atomically.
func (r *Repository) CreateRecordIfAbsent(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.MarkedAt.IsZero() {
		rec.MarkedAt = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, session_id, student_id, status, method, lat, lon, distance_m, marked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id, student_id) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.StudentID, rec.Status, rec.Method, rec.Lat, rec.Lon, rec.DistanceM, rec.MarkedAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrAlreadyMarked
		}
		return Record{}, err
	}
	return rec, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, status, method, lat, lon, distance_m, marked_at, created_at
		FROM attendance_records WHERE id = $1
	`, id)
	var rec Record
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.Method,
		&rec.Lat, &rec.Lon, &rec.DistanceM, &rec.MarkedAt, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListRecordsBySession returns all records for a session, newest first.
func (r *Repository) ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, status, method, lat, lon, distance_m, marked_at, created_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.Status, &rec.Method,
			&rec.Lat, &rec.Lon, &rec.DistanceM, &rec.MarkedAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func scanSession(row *sql.Row, s *Session) error {
	return row.Scan(&s.ID, &s.SubjectID, &s.FacultyID, &s.Code, &s.Lat, &s.Lon,
		&s.RadiusM, &s.Active, &s.CreatedAt, &s.ExpiresAt)
}

// isUniqueViolation detects Postgres unique violations (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
