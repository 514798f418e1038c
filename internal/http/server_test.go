package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"

	"oikos/lms/internal/catalog"
	"oikos/lms/internal/config"
	"oikos/lms/internal/model"
	"oikos/lms/internal/reconcile"
	"oikos/lms/internal/session"
)

type memRosterStore struct {
	mu      sync.Mutex
	records map[string]model.StudentRecord
	fail    bool
}

func (m *memRosterStore) FetchAll(ctx context.Context) ([]model.StudentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("store offline")
	}
	out := make([]model.StudentRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (m *memRosterStore) Upsert(ctx context.Context, record model.StudentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store offline")
	}
	m.records[record.Email] = record.Clone()
	return nil
}

type memAttendanceStore struct {
	mu     sync.Mutex
	tables map[string]model.AttendanceTable
}

func (m *memAttendanceStore) FetchForCourse(ctx context.Context, courseID string) (model.AttendanceTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, ok := m.tables[courseID]
	if !ok {
		return model.AttendanceTable{}, nil
	}
	return table.Clone(), nil
}

func (m *memAttendanceStore) SaveForCourse(ctx context.Context, courseID string, table model.AttendanceTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[courseID] = table.Clone()
	return nil
}

func (m *memAttendanceStore) SetCell(ctx context.Context, courseID, date, email string, status model.AttendanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	table, ok := m.tables[courseID]
	if !ok {
		table = model.AttendanceTable{}
		m.tables[courseID] = table
	}
	table.SetCell(date, email, status)
	return nil
}

type memResourceStore struct {
	mu    sync.Mutex
	lists map[string][]model.Resource
}

func (m *memResourceStore) FetchResources(ctx context.Context, courseID string) ([]model.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Resource(nil), m.lists[courseID]...), nil
}

func (m *memResourceStore) SaveResources(ctx context.Context, courseID string, resources []model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[courseID] = append([]model.Resource(nil), resources...)
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Save(ctx context.Context, key string, value any) bool {
	blob, err := json.Marshal(value)
	if err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = blob
	return true
}

func (m *memCache) Load(ctx context.Context, key string, dest any) bool {
	m.mu.Lock()
	blob, ok := m.data[key]
	m.mu.Unlock()
	if !ok {
		return false
	}
	return json.Unmarshal(blob, dest) == nil
}

func (m *memCache) Delete(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *memCache) ExportAll(ctx context.Context) (map[string]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]json.RawMessage, len(m.data))
	for key, blob := range m.data {
		out[key] = json.RawMessage(append([]byte(nil), blob...))
	}
	return out, nil
}

type testEnv struct {
	router http.Handler
	rec    *reconcile.Reconciler
	roster *memRosterStore
	cat    *catalog.Catalog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat := catalog.Default()
	roster := &memRosterStore{records: make(map[string]model.StudentRecord)}
	attendance := &memAttendanceStore{tables: make(map[string]model.AttendanceTable)}
	resources := &memResourceStore{lists: make(map[string][]model.Resource)}
	cacheStore := &memCache{data: make(map[string][]byte)}
	rec := reconcile.New(cat, roster, attendance, resources, cacheStore, 0, zap.NewNop())
	resolver := session.NewResolver(cat, rec, zap.NewNop())
	srv := NewServer(config.Config{}, rec, resolver, cat, cacheStore, zap.NewNop())
	return &testEnv{router: srv.Router(), rec: rec, roster: roster, cat: cat}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(blob)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) loginStudent(t *testing.T, email, name string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/login", map[string]any{
		"email": email, "name": name, "role": "STUDENT",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("student login: %d %s", rr.Code, rr.Body.String())
	}
}

func (e *testEnv) loginProfessor(t *testing.T) string {
	t.Helper()
	email := e.cat.Professors[0].Email
	rr := e.do(t, http.MethodPost, "/login", map[string]any{
		"email": email, "name": "ignored", "role": "PROFESSOR",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("professor login: %d %s", rr.Code, rr.Body.String())
	}
	return email
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: %d", rr.Code)
	}
}

func TestRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)
	for _, probe := range []struct{ method, path string }{
		{http.MethodGet, "/roster"},
		{http.MethodPost, "/course/gen-ai-101/register"},
		{http.MethodGet, "/course/gen-ai-101/attendance"},
		{http.MethodPost, "/refresh"},
		{http.MethodGet, "/backup/export"},
	} {
		rr := e.do(t, probe.method, probe.path, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", probe.method, probe.path, rr.Code)
		}
	}
}

func TestLoginUnknownProfessorIsUnauthorized(t *testing.T) {
	e := newTestEnv(t)
	rr := e.do(t, http.MethodPost, "/login", map[string]any{
		"email": "impostor@oikos.ac.kr", "role": "PROFESSOR",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodGet, "/session", nil)
	var resp struct {
		Session *model.SessionIdentity `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.Session != nil {
		t.Fatalf("failed login must not install a session")
	}
}

func TestRegisterFlow(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")

	if rr := e.do(t, http.MethodPost, "/course/gen-ai-101/register", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("register: %d %s", rr.Code, rr.Body.String())
	}
	if rr := e.do(t, http.MethodPost, "/course/not-a-course/register", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown course: expected 400, got %d", rr.Code)
	}

	rr := e.do(t, http.MethodGet, "/session", nil)
	var resp struct {
		Session *model.SessionIdentity `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.Session == nil || !resp.Session.HasCourse("gen-ai-101") {
		t.Fatalf("expected registration visible in session: %+v", resp.Session)
	}

	if rr := e.do(t, http.MethodDelete, "/course/gen-ai-101/register", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("unregister: %d", rr.Code)
	}
	e.rec.Wait()
}

func TestRosterForbiddenForStudents(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")
	if rr := e.do(t, http.MethodGet, "/roster", nil); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAttendanceMarkAndStudentFilter(t *testing.T) {
	e := newTestEnv(t)
	e.loginProfessor(t)

	mark := func(email string) {
		t.Helper()
		rr := e.do(t, http.MethodPost, "/course/gen-ai-101/attendance", map[string]any{
			"date": "Mar 9", "email": email,
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("mark %s: %d %s", email, rr.Code, rr.Body.String())
		}
	}
	mark("park@oikos.ac.kr")
	mark("choi@oikos.ac.kr")

	rr := e.do(t, http.MethodGet, "/course/gen-ai-101/attendance", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("staff view: %d", rr.Code)
	}
	var full model.AttendanceTable
	if err := json.Unmarshal(rr.Body.Bytes(), &full); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	if len(full["Mar 9"]) != 2 {
		t.Fatalf("staff must see both rows: %v", full)
	}

	// Students only see their own cells.
	e.rec.Wait()
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")
	rr = e.do(t, http.MethodGet, "/course/gen-ai-101/attendance", nil)
	var own model.AttendanceTable
	if err := json.Unmarshal(rr.Body.Bytes(), &own); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	if len(own["Mar 9"]) != 1 {
		t.Fatalf("student must see only their row: %v", own)
	}
	if own.Cell("Mar 9", "park@oikos.ac.kr") != model.AttendancePresent {
		t.Fatalf("unexpected own cell: %v", own)
	}

	// Students cannot mark.
	rr = e.do(t, http.MethodPost, "/course/gen-ai-101/attendance", map[string]any{
		"date": "Mar 9", "email": "park@oikos.ac.kr", "status": "late",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("student mark: expected 400, got %d", rr.Code)
	}
}

func TestAttendanceUnknownCourseIs404(t *testing.T) {
	e := newTestEnv(t)
	e.loginProfessor(t)
	if rr := e.do(t, http.MethodGet, "/course/nope/attendance", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestResourcesFlow(t *testing.T) {
	e := newTestEnv(t)
	e.loginProfessor(t)

	rr := e.do(t, http.MethodPost, "/course/gen-ai-101/resources", map[string]any{
		"title": "Week 1 slides",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add resource: %d %s", rr.Code, rr.Body.String())
	}
	rr = e.do(t, http.MethodGet, "/course/gen-ai-101/resources", nil)
	var list []model.Resource
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode resources: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Week 1 slides" {
		t.Fatalf("unexpected resources: %v", list)
	}
	if list[0].ID == "" || list[0].Type != "file" {
		t.Fatalf("defaults not applied: %+v", list[0])
	}
	e.rec.Wait()
}

func TestRefreshReportsRemoteOutage(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")
	e.rec.Wait()
	e.roster.mu.Lock()
	e.roster.fail = true
	e.roster.mu.Unlock()

	if rr := e.do(t, http.MethodPost, "/refresh", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestSyncStatusCountsStaleEntities(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")
	e.rec.Wait()
	e.roster.mu.Lock()
	e.roster.fail = true
	e.roster.mu.Unlock()

	if rr := e.do(t, http.MethodPost, "/course/gen-ai-101/register", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("register: %d", rr.Code)
	}
	e.rec.Wait()

	rr := e.do(t, http.MethodGet, "/sync/status", nil)
	var summary reconcile.SyncSummary
	if err := json.Unmarshal(rr.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.Stale != 1 {
		t.Fatalf("expected one stale entity, got %+v", summary)
	}
}

func TestBackupExport(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")
	e.rec.Wait()

	rr := e.do(t, http.MethodGet, "/backup/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got == "" {
		t.Fatalf("expected attachment disposition")
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if _, ok := entries["session"]; !ok {
		t.Fatalf("expected session entry in export, got keys %v", entries)
	}
}

func TestSessionMismatchHeaderRejected(t *testing.T) {
	e := newTestEnv(t)
	e.loginStudent(t, "park@oikos.ac.kr", "Park Jiho")

	req := httptest.NewRequest(http.MethodPost, "/course/gen-ai-101/register", bytes.NewReader(nil))
	req.Header.Set("X-User-Email", "someone.else@oikos.ac.kr")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on mismatched header, got %d", rr.Code)
	}
	e.rec.Wait()
}
