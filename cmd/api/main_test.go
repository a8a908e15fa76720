package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"edtrack/internal/attendance"
	"edtrack/internal/auth"
	"edtrack/internal/config"
	"edtrack/internal/queue"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]attendance.Session
	records  map[string]attendance.Record
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]attendance.Session),
		records:  make(map[string]attendance.Record),
	}
}

func (f *fakeStore) CreateSession(ctx context.Context, s attendance.Session) (attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = "sess-" + s.Code
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) FindActiveByCode(ctx context.Context, code string) (*attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.Active && s.Code == code {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (attendance.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return attendance.Session{}, attendance.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeStore) EndSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Active = false
		f.sessions[id] = s
	}
	return nil
}

func (f *fakeStore) CreateRecordIfAbsent(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rec.SessionID + "/" + rec.StudentID
	if _, ok := f.records[key]; ok {
		return attendance.Record{}, attendance.ErrAlreadyMarked
	}
	rec.ID = "rec-" + key
	rec.CreatedAt = time.Now().UTC()
	f.records[key] = rec
	return rec, nil
}

func (f *fakeStore) GetRecord(ctx context.Context, id string) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return attendance.Record{}, attendance.ErrSessionNotFound
}

func (f *fakeStore) ListRecordsBySession(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []attendance.Record
	for _, rec := range f.records {
		if rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

const (
	testKey    = "test-signing-key"
	testIssuer = "edtrack-test"
	campusLat  = 12.9716
	campusLon  = 77.5946
)

func newTestServer(t *testing.T) (*gin.Engine, *fakeStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:       testIssuer,
		JWTSigningKey:   testKey,
		RateLimitPerMin: 10000,
	}
	st := newFakeStore()
	svc := attendance.NewService(st, st, nil, attendance.Config{
		SessionTTL:     10 * time.Minute,
		DefaultRadiusM: 200,
		FallbackLat:    campusLat,
		FallbackLon:    campusLon,
	})
	r := newRouter(cfg, svc, nil, queue.NewInMemory(16), nil, nil)
	return r, st
}

func bearer(t *testing.T, subject, role string) string {
	t.Helper()
	token, _, err := auth.Issue(subject, role, testIssuer, testKey, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, r *gin.Engine, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startTestSession(t *testing.T, r *gin.Engine) attendance.Session {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/attendance/sessions/start", bearer(t, "F1", auth.RoleFaculty),
		map[string]any{"subject_id": "S1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("start session status = %d, body %s", w.Code, w.Body.String())
	}
	var sess attendance.Session
	if err := json.Unmarshal(w.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess
}

func TestStartSessionEndpoint(t *testing.T) {
	r, _ := newTestServer(t)

	sess := startTestSession(t, r)
	if len(sess.Code) != 8 {
		t.Errorf("qr_code = %q, want 8 hex chars", sess.Code)
	}
	if !sess.Active {
		t.Error("session not active")
	}
	if sess.RadiusM != 200 {
		t.Errorf("radius = %v, want default 200", sess.RadiusM)
	}
	if !sess.ExpiresAt.After(sess.CreatedAt) {
		t.Error("expires_at not after created_at")
	}
}

func TestStartSessionRequiresFacultyToken(t *testing.T) {
	r, _ := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/v1/attendance/sessions/start", "", map[string]any{"subject_id": "S1"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/attendance/sessions/start", bearer(t, "U1", auth.RoleStudent),
		map[string]any{"subject_id": "S1"})
	if w.Code != http.StatusForbidden {
		t.Errorf("student token: status = %d, want 403", w.Code)
	}
}

func TestMarkEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	sess := startTestSession(t, r)
	student := bearer(t, "U1", auth.RoleStudent)

	w := doJSON(t, r, http.MethodPost, "/v1/attendance/mark", student,
		map[string]any{"qr_code": sess.Code, "latitude": campusLat, "longitude": campusLon})
	if w.Code != http.StatusOK {
		t.Fatalf("mark status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Message string            `json:"message"`
		Record  attendance.Record `json:"record"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Record.StudentID != "U1" || resp.Record.Status != attendance.StatusPresent {
		t.Errorf("record = %+v, want U1 present", resp.Record)
	}

	// Same student, same code: exactly one record plus one rejection.
	w = doJSON(t, r, http.MethodPost, "/v1/attendance/mark", student,
		map[string]any{"qr_code": sess.Code, "latitude": campusLat, "longitude": campusLon})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate mark status = %d, want 400", w.Code)
	}
}

func TestMarkEndpointGeofence(t *testing.T) {
	r, _ := newTestServer(t)
	sess := startTestSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/attendance/mark", bearer(t, "U1", auth.RoleStudent),
		map[string]any{"qr_code": sess.Code, "latitude": 12.9816, "longitude": campusLon})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error    string `json:"error"`
		Distance int    `json:"distance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Distance < 1105 || resp.Distance > 1120 {
		t.Errorf("distance = %d, want ~1112", resp.Distance)
	}
}

func TestMarkEndpointBadCodeAndBadBody(t *testing.T) {
	r, _ := newTestServer(t)
	student := bearer(t, "U1", auth.RoleStudent)

	w := doJSON(t, r, http.MethodPost, "/v1/attendance/mark", student,
		map[string]any{"qr_code": "DEADBEEF", "latitude": campusLat, "longitude": campusLon})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown code status = %d, want 404", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/attendance/mark", student,
		map[string]any{"qr_code": "DEADBEEF"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing coordinates status = %d, want 400", w.Code)
	}
}

func TestEndSessionEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	sess := startTestSession(t, r)

	w := doJSON(t, r, http.MethodPost, "/v1/attendance/sessions/"+sess.ID+"/end", bearer(t, "F2", auth.RoleFaculty), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign faculty end status = %d, want 403", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/attendance/sessions/"+sess.ID+"/end", bearer(t, "F1", auth.RoleFaculty), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("end status = %d, body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/v1/attendance/mark", bearer(t, "U1", auth.RoleStudent),
		map[string]any{"qr_code": sess.Code, "latitude": campusLat, "longitude": campusLon})
	if w.Code != http.StatusNotFound {
		t.Errorf("mark after end status = %d, want 404", w.Code)
	}
}

func TestReportEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	sess := startTestSession(t, r)

	for _, student := range []string{"U1", "U2"} {
		w := doJSON(t, r, http.MethodPost, "/v1/attendance/mark", bearer(t, student, auth.RoleStudent),
			map[string]any{"qr_code": sess.Code, "latitude": campusLat, "longitude": campusLon})
		if w.Code != http.StatusOK {
			t.Fatalf("mark for %s status = %d", student, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/v1/attendance/report/"+sess.ID, bearer(t, "F1", auth.RoleFaculty), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Records []attendance.Record `json:"records"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Records) != 2 {
		t.Errorf("records = %d, want 2", len(resp.Records))
	}
}

func TestSessionQREndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	sess := startTestSession(t, r)

	req := httptest.NewRequest(http.MethodGet, "/v1/attendance/sessions/"+sess.ID+"/qr", nil)
	req.Header.Set("Authorization", bearer(t, "F1", auth.RoleFaculty))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("qr status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	// PNG magic bytes
	if b := w.Body.Bytes(); len(b) < 8 || b[1] != 'P' || b[2] != 'N' || b[3] != 'G' {
		t.Error("response is not a PNG")
	}
}
