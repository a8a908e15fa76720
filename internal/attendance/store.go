package attendance

import "context"

// SessionStore persists attendance sessions.
type SessionStore interface {
	// CreateSession writes a new session. Returns errCodeCollision when an
	// active session already carries the same code.
	CreateSession(ctx context.Context, s Session) (Session, error)
	// FindActiveByCode returns the active session for code, or nil when none.
	FindActiveByCode(ctx context.Context, code string) (*Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	// EndSession flips the session inactive. Ending an already-inactive
	// session is a no-op.
	EndSession(ctx context.Context, id string) error
}

// RecordStore persists attendance records.
type RecordStore interface {
	// CreateRecordIfAbsent atomically inserts the record unless one already
	// exists for (session, student), in which case it returns ErrAlreadyMarked.
	// The uniqueness guarantee lives in the store, not in callers.
	CreateRecordIfAbsent(ctx context.Context, rec Record) (Record, error)
	GetRecord(ctx context.Context, id string) (Record, error)
	ListRecordsBySession(ctx context.Context, sessionID string) ([]Record, error)
}
