package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/application/command"
	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/memory"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/report"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

const jwtSecret = "test-secret-that-is-long-enough-123"

type opRecorder struct {
	mu  sync.Mutex
	ops map[string]string
}

func (r *opRecorder) ObserveOperation(op string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.ops[op] = outcome
}

func (r *opRecorder) ObserveRequest(string, string, string, time.Duration) {}

func (r *opRecorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
}

type testServer struct {
	t       *testing.T
	store   *memory.Store
	auth    *Authenticator
	metrics *opRecorder
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.AddSchool("school-a", "Almaty Central")
	store.AddSchool("school-b", "Astana North")
	store.AssignManager("manager-1", "school-a")

	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	auth := NewAuthenticator(jwtSecret, "progression-engine", []APIKey{{Name: "importer", Role: shared.RoleManager, Hash: hash}})

	cmd := command.Deps{UoW: store, Location: time.UTC}
	qry := query.Deps{UoW: store, Location: time.UTC}
	rec := &opRecorder{ops: map[string]string{}}

	srv := NewServer(DefaultConfig(), Dependencies{
		CreditAttendance:   command.NewCreditAttendanceHandler(cmd),
		RecordAttendance:   command.NewRecordAttendanceHandler(cmd),
		RevertAttendance:   command.NewRevertAttendanceHandler(cmd),
		CreateLesson:       command.NewCreateLessonHandler(cmd, nil),
		DeleteLesson:       command.NewDeleteLessonHandler(cmd),
		CreateSchedule:     command.NewCreateScheduleHandler(cmd, nil),
		ExtendSchedule:     command.NewExtendScheduleHandler(cmd, nil),
		DeactivateSchedule: command.NewDeactivateScheduleHandler(cmd, nil),
		CreateEvent:        command.NewCreateEventHandler(cmd),
		RegisterForEvent:   command.NewRegisterForEventHandler(cmd),
		EvaluateSeminar:    command.NewEvaluateSeminarHandler(cmd, nil, command.EvaluationOptions{}),
		DecideStudent:      command.NewDecideStudentHandler(cmd),
		ChangeGrade:        command.NewChangeGradeHandler(cmd),
		SaveRequirement:    command.NewSaveRequirementHandler(cmd),
		HoursForGrade:      query.NewHoursForGradeHandler(qry),
		CheckEligibility:   query.NewCheckEligibilityHandler(qry),
		StudentProgress:    query.NewGetStudentProgressHandler(qry, nil),
		Lessons:            query.NewLessonsHandler(qry),
		Catalog:            query.NewCatalogHandler(qry),
		Auth:               auth,
		Metrics:            rec,
		Logger:             logger.Nop(),
	})
	return &testServer{t: t, store: store, auth: auth, metrics: rec, handler: srv.Handler()}
}

func (s *testServer) token(userID string, role shared.Role) string {
	s.t.Helper()
	tok, err := s.auth.IssueToken(userID, role, time.Hour)
	require.NoError(s.t, err)
	return "Bearer " + tok
}

func (s *testServer) do(method, path, authz string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env
}

func (s *testServer) enroll(schoolID, name string) *student.Student {
	s.t.Helper()
	st, err := student.NewStudent("user-"+name, schoolID, name)
	require.NoError(s.t, err)
	require.NoError(s.t, s.store.Do(context.Background(), func(ctx context.Context, repos uow.Repositories) error {
		return repos.Students.Create(ctx, st)
	}))
	rec := s.do("POST", "/api/v1/students/"+st.ID+"/approve", s.token("admin-1", shared.RoleAdmin), nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return st
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do("GET", "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do("GET", "/ready", "", nil).Code)
	rec := s.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := s.do("GET", "/api/v1/grades/hours/3", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "unauthorized", env.Error.Code)

	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/v1/grades/hours/3", "Bearer not-a-token", nil).Code)

	expired, err := s.auth.IssueToken("admin-1", shared.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/v1/grades/hours/3", "Bearer "+expired, nil).Code)

	other := NewAuthenticator("another-secret-that-is-long-enough", "progression-engine", nil)
	forged, err := other.IssueToken("admin-1", shared.RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, s.do("GET", "/api/v1/grades/hours/3", "Bearer "+forged, nil).Code)

	req := httptest.NewRequest("GET", "/api/v1/grades/hours/3", nil)
	req.Header.Set(headerAPIKey, "importer:s3cret")
	ok := httptest.NewRecorder()
	s.handler.ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	req.Header.Set(headerAPIKey, "importer:wrong")
	bad := httptest.NewRecorder()
	s.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestGradeLookups(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("admin-1", shared.RoleAdmin)

	var hours query.HoursForGradeResult
	rec := s.do("GET", "/api/v1/grades/hours/9", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &hours)
	assert.Equal(t, 96.0, hours.RequiredHours)
	assert.Equal(t, 80.0, hours.MinimumHours)
	assert.Equal(t, "ok", s.metrics.ops["hours_for_grade"])

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/v1/grades/hours/abc", admin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/v1/grades/hours/0", admin, nil).Code)
	assert.Equal(t, "error", s.metrics.ops["hours_for_grade"])

	var elig query.EligibilityResult
	rec = s.do("GET", "/api/v1/grades/eligibility?grade=3&completed_hours=50", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &elig)
	assert.Equal(t, "NEEDS_APPROVAL", string(elig.Eligibility))
	assert.Equal(t, 4.0, elig.RemainingHours)

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/v1/grades/eligibility?grade=3", admin, nil).Code)
}

func TestScheduleLifecycle(t *testing.T) {
	s := newTestServer(t)
	mgr := s.token("manager-1", shared.RoleManager)

	body := map[string]interface{}{
		"school_id":   "school-a",
		"branch":      "WING_TSUN",
		"lesson_type": "GROUP",
		"day_of_week": 0,
		"start_time":  "18:00",
		"start_date":  "2026-01-01",
		"end_date":    "2026-01-31",
	}
	var created command.CreateScheduleResult
	rec := s.do("POST", "/api/v1/schedules", mgr, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &created)
	assert.Equal(t, 4, created.LessonsCreated)
	id := created.Schedule.ID

	var extended command.ExtendScheduleResult
	rec = s.do("POST", "/api/v1/schedules/"+id+"/extend", mgr, map[string]string{"new_end_date": "2026-02-28"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &extended)
	assert.Equal(t, 4, extended.LessonsCreated)

	rec = s.do("POST", "/api/v1/schedules/"+id+"/extend", mgr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &extended)
	assert.Equal(t, 0, extended.LessonsCreated)

	rec = s.do("POST", "/api/v1/schedules/"+id+"/extend", mgr, map[string]string{"new_end_date": "2026-01-15"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body["school_id"] = "school-b"
	assert.Equal(t, http.StatusForbidden, s.do("POST", "/api/v1/schedules", mgr, body).Code)
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/v1/schedules/missing", mgr, nil).Code)

	rec = s.do("DELETE", "/api/v1/schedules/"+id, mgr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/v1/schedules/"+id+"/extend", mgr, nil).Code)
}

func TestAttendanceAndProgress(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("admin-1", shared.RoleAdmin)
	st := s.enroll("school-a", "Aruzhan")

	var l struct {
		ID string `json:"id"`
	}
	rec := s.do("POST", "/api/v1/lessons", admin, map[string]string{
		"school_id": "school-a", "branch": "WING_TSUN", "lesson_type": "GROUP",
		"date": "2026-01-05", "start_time": "18:00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &l)

	var credited command.CreditAttendanceResult
	rec = s.do("POST", "/api/v1/lessons/"+l.ID+"/attendance", admin, map[string][]string{"student_ids": {st.ID, st.ID}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &credited)
	require.Len(t, credited.Created, 1)

	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/v1/lessons/"+l.ID+"/attendance/"+st.ID, admin, nil).Code)
	assert.Equal(t, http.StatusConflict, s.do("DELETE", "/api/v1/lessons/"+l.ID, admin, nil).Code)

	var view query.ProgressView
	self := s.token(st.UserID, shared.RoleMember)
	rec = s.do("GET", "/api/v1/students/"+st.ID+"/progress", self, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &view)
	for _, b := range view.Branches {
		if b.Branch == shared.BranchWingTsun {
			assert.Equal(t, 2.0, b.CompletedHours)
			assert.Equal(t, 52.0, b.RemainingHours)
		}
	}

	rec = s.do("DELETE", "/api/v1/attendance/"+credited.Created[0].ID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, s.do("DELETE", "/api/v1/attendance/"+credited.Created[0].ID, admin, nil).Code)

	stranger := s.token("someone", shared.RoleMember)
	assert.Equal(t, http.StatusForbidden, s.do("GET", "/api/v1/students/"+st.ID+"/progress", stranger, nil).Code)
}

func TestSeminarEvaluationRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("admin-1", shared.RoleAdmin)
	mgr := s.token("manager-1", shared.RoleManager)

	var event struct {
		ID string `json:"id"`
	}
	rec := s.do("POST", "/api/v1/events", admin, map[string]string{
		"name": "Summer seminar", "type": "SEMINAR", "scope": "ALL_SCHOOLS", "event_date": "2026-07-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	decode(t, rec, &event)

	evaluate := map[string][]string{"passing_student_ids": {}}
	assert.Equal(t, http.StatusForbidden, s.do("POST", "/api/v1/events/"+event.ID+"/evaluate", mgr, evaluate).Code)
	assert.Equal(t, http.StatusOK, s.do("POST", "/api/v1/events/"+event.ID+"/evaluate", admin, evaluate).Code)
	assert.Equal(t, http.StatusConflict, s.do("POST", "/api/v1/events/"+event.ID+"/evaluate", admin, evaluate).Code)
	assert.Equal(t, "error", s.metrics.ops["evaluate_seminar"])
}

func TestAttendanceExport(t *testing.T) {
	s := newTestServer(t)
	admin := s.token("admin-1", shared.RoleAdmin)

	rec := s.do("GET", "/api/v1/reports/attendance.xlsx?school_id=school-a", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, report.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance_")
	assert.NotZero(t, rec.Body.Len())

	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/v1/reports/attendance?from=2026-13-01", admin, nil).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{shared.ErrInvalidFormat, http.StatusBadRequest},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrAlreadyExists, http.StatusConflict},
		{shared.ErrForbidden, http.StatusForbidden},
		{shared.ErrUnauthorized, http.StatusUnauthorized},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := statusFor(tt.err)
		assert.Equal(t, tt.want, got, "%v", tt.err)
	}
}
