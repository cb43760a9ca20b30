package command

import (
	"context"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/memory"
	redisstore "github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/redis"
	"github.com/wingtsun-academy/progression-engine/pkg/circuitbreaker"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

var (
	admin   = shared.Actor{UserID: "admin-1", Role: shared.RoleAdmin}
	manager = shared.Actor{UserID: "manager-1", Role: shared.RoleManager}
	member  = shared.Actor{UserID: "member-1", Role: shared.RoleMember}
)

const (
	schoolA = "school-a"
	schoolB = "school-b"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	pub   *recordingPublisher
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.AddSchool(schoolA, "Almaty Central")
	store.AddSchool(schoolB, "Astana North")
	store.AssignManager(manager.UserID, schoolA)

	pub := &recordingPublisher{}
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: store,
		pub:   pub,
		deps:  Deps{UoW: store, Publisher: pub, Location: time.UTC},
	}
}

// enroll creates an approved student of schoolID with ledgers in every branch.
func (f *fixture) enroll(schoolID, name string) *student.Student {
	f.t.Helper()
	st, err := student.NewStudent("user-"+name, schoolID, name)
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Do(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Students.Create(ctx, st)
	}))

	approved, err := NewDecideStudentHandler(f.deps).Handle(f.ctx, DecideStudentCommand{
		Actor: admin, StudentID: st.ID, Approve: true,
	})
	require.NoError(f.t, err)
	return approved
}

func (f *fixture) progress(studentID string, branch shared.Branch) *progression.StudentProgress {
	f.t.Helper()
	var p *progression.StudentProgress
	require.NoError(f.t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		p, err = repos.Progress.Get(ctx, studentID, branch)
		return err
	}))
	return p
}

func (f *fixture) lesson(schoolID string, branch shared.Branch) *lesson.Lesson {
	f.t.Helper()
	l, err := NewCreateLessonHandler(f.deps, nil).Handle(f.ctx, CreateLessonCommand{
		Actor:      admin,
		SchoolID:   schoolID,
		Branch:     string(branch),
		LessonType: string(lesson.TypeGroup),
		Date:       "2026-01-05",
		StartTime:  "18:00",
	})
	require.NoError(f.t, err)
	return l
}

func (f *fixture) auditActions(entityType string) []audit.Action {
	f.t.Helper()
	var out []audit.Action
	require.NoError(f.t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		entries, err := repos.Audit.List(ctx, audit.Filter{EntityType: entityType})
		for _, e := range entries {
			out = append(out, e.Action)
		}
		return err
	}))
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestDecideStudent_ApproveOpensLedgers(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")

	assert.Equal(t, student.StatusApproved, st.Status)
	for _, b := range shared.AllBranches() {
		p := f.progress(st.ID, b)
		assert.Equal(t, progression.InitialGrade, p.CurrentGrade)
		assert.Zero(t, p.CompletedHours)
	}
	assert.Contains(t, f.pub.types(), shared.EventProgressCreated)

	_, err := NewDecideStudentHandler(f.deps).Handle(f.ctx, DecideStudentCommand{Actor: admin, StudentID: st.ID})
	assert.True(t, shared.IsConflict(err), "deciding twice must conflict, got %v", err)
}

func TestDecideStudent_ManagerOfOtherSchoolIsForbidden(t *testing.T) {
	f := newFixture(t)
	st, err := student.NewStudent("u", schoolB, "Dias")
	require.NoError(t, err)
	require.NoError(t, f.store.Do(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Students.Create(ctx, st)
	}))

	_, err = NewDecideStudentHandler(f.deps).Handle(f.ctx, DecideStudentCommand{Actor: manager, StudentID: st.ID, Approve: true})
	assert.True(t, shared.IsForbidden(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func TestCreditAndRevert_RoundTrip(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	l := f.lesson(schoolA, shared.BranchWingTsun)
	before := f.progress(st.ID, shared.BranchWingTsun).CompletedHours

	res, err := NewCreditAttendanceHandler(f.deps).Handle(f.ctx, CreditAttendanceCommand{
		Actor: manager, LessonID: l.ID, StudentIDs: []string{st.ID},
	})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, 2.0, res.Created[0].HoursCredited)
	assert.Equal(t, before+2.0, f.progress(st.ID, shared.BranchWingTsun).CompletedHours)

	revert := NewRevertAttendanceHandler(f.deps)
	out, err := revert.Handle(f.ctx, RevertAttendanceCommand{Actor: manager, AttendanceID: res.Created[0].ID})
	require.NoError(t, err)
	require.NotNil(t, out.CompletedHours)
	assert.Equal(t, before, *out.CompletedHours)
	assert.Equal(t, before, f.progress(st.ID, shared.BranchWingTsun).CompletedHours)

	_, err = revert.Handle(f.ctx, RevertAttendanceCommand{Actor: manager, AttendanceID: res.Created[0].ID})
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, before, f.progress(st.ID, shared.BranchWingTsun).CompletedHours)

	assert.ElementsMatch(t,
		[]audit.Action{audit.ActionAttendanceCreated, audit.ActionAttendanceDeleted},
		f.auditActions(audit.EntityAttendance))
}

func TestCreditAttendance_SkipsOtherSchoolsAndDuplicates(t *testing.T) {
	f := newFixture(t)
	local := f.enroll(schoolA, "Aruzhan")
	foreign := f.enroll(schoolB, "Dias")
	l := f.lesson(schoolA, shared.BranchEscrima)

	h := NewCreditAttendanceHandler(f.deps)
	cmd := CreditAttendanceCommand{Actor: admin, LessonID: l.ID, StudentIDs: []string{local.ID, foreign.ID, "ghost", local.ID}}

	first, err := h.Handle(f.ctx, cmd)
	require.NoError(t, err)
	assert.Len(t, first.Created, 1)
	assert.ElementsMatch(t, []SkippedStudent{
		{StudentID: foreign.ID, Reason: SkipOtherSchool},
		{StudentID: "ghost", Reason: SkipUnknownStudent},
	}, first.Skipped)

	second, err := h.Handle(f.ctx, cmd)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Contains(t, second.Skipped, SkippedStudent{StudentID: local.ID, Reason: SkipDuplicate})

	assert.Equal(t, 2.0, f.progress(local.ID, shared.BranchEscrima).CompletedHours)
	assert.Zero(t, f.progress(foreign.ID, shared.BranchEscrima).CompletedHours)
}

func TestCreditAttendance_ConcurrentCreditsAreNotLost(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	const n = 20
	lessons := make([]*lesson.Lesson, n)
	for i := range lessons {
		lessons[i] = f.lesson(schoolA, shared.BranchWingTsun)
	}

	credit := NewCreditAttendanceHandler(f.deps)
	created := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, l := range lessons {
		wg.Add(1)
		go func(i int, lessonID string) {
			defer wg.Done()
			res, err := credit.Handle(f.ctx, CreditAttendanceCommand{Actor: manager, LessonID: lessonID, StudentIDs: []string{st.ID}})
			errs[i] = err
			if err == nil && len(res.Created) == 1 {
				created[i] = res.Created[0].ID
			}
		}(i, l.ID)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
		require.NotEmpty(t, created[i])
	}
	assert.Equal(t, n*2.0, f.progress(st.ID, shared.BranchWingTsun).CompletedHours)

	revert := NewRevertAttendanceHandler(f.deps)
	for i, id := range created {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = revert.Handle(f.ctx, RevertAttendanceCommand{Actor: manager, AttendanceID: id})
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Zero(t, f.progress(st.ID, shared.BranchWingTsun).CompletedHours)
}

func TestRecordAttendance_SurfacesErrors(t *testing.T) {
	f := newFixture(t)
	local := f.enroll(schoolA, "Aruzhan")
	foreign := f.enroll(schoolB, "Dias")
	l := f.lesson(schoolA, shared.BranchWingTsun)
	h := NewRecordAttendanceHandler(f.deps)

	_, err := h.Handle(f.ctx, RecordAttendanceCommand{Actor: manager, LessonID: l.ID, StudentID: local.ID})
	require.NoError(t, err)

	_, err = h.Handle(f.ctx, RecordAttendanceCommand{Actor: manager, LessonID: l.ID, StudentID: local.ID})
	assert.True(t, shared.IsConflict(err), "duplicate should conflict, got %v", err)

	_, err = h.Handle(f.ctx, RecordAttendanceCommand{Actor: manager, LessonID: l.ID, StudentID: foreign.ID})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(f.ctx, RecordAttendanceCommand{Actor: member, LessonID: l.ID, StudentID: local.ID})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.Handle(f.ctx, RecordAttendanceCommand{LessonID: l.ID, StudentID: local.ID})
	assert.True(t, shared.IsUnauthorized(err))
}

func TestDeleteLesson_RefusesAttendedLesson(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	attended := f.lesson(schoolA, shared.BranchWingTsun)
	empty := f.lesson(schoolA, shared.BranchWingTsun)

	_, err := NewRecordAttendanceHandler(f.deps).Handle(f.ctx, RecordAttendanceCommand{Actor: admin, LessonID: attended.ID, StudentID: st.ID})
	require.NoError(t, err)

	h := NewDeleteLessonHandler(f.deps)
	assert.True(t, shared.IsConflict(h.Handle(f.ctx, DeleteLessonCommand{Actor: admin, LessonID: attended.ID})))
	assert.NoError(t, h.Handle(f.ctx, DeleteLessonCommand{Actor: admin, LessonID: empty.ID}))
	assert.True(t, shared.IsNotFound(h.Handle(f.ctx, DeleteLessonCommand{Actor: admin, LessonID: empty.ID})))
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

func createMondaySchedule(t *testing.T, f *fixture, actor shared.Actor, end string) *CreateScheduleResult {
	t.Helper()
	res, err := NewCreateScheduleHandler(f.deps, nil).Handle(f.ctx, CreateScheduleCommand{
		Actor:      actor,
		SchoolID:   schoolA,
		Branch:     string(shared.BranchWingTsun),
		LessonType: string(lesson.TypeGroup),
		DayOfWeek:  0,
		StartTime:  "18:30",
		StartDate:  "2026-01-01",
		EndDate:    end,
	})
	require.NoError(t, err)
	return res
}

func TestCreateSchedule_MaterializesLessons(t *testing.T) {
	f := newFixture(t)
	res := createMondaySchedule(t, f, manager, "2026-01-31")

	assert.Equal(t, 4, res.LessonsCreated)
	assert.Equal(t, 2.0, res.Schedule.DurationHours)
	assert.Contains(t, f.pub.types(), shared.EventScheduleCreated)

	var days []string
	require.NoError(t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		lessons, err := repos.Lessons.ListBySchedule(ctx, res.Schedule.ID)
		for _, l := range lessons {
			days = append(days, l.DayKey())
			assert.Equal(t, 18, l.LessonDate.Hour())
			assert.Equal(t, 30, l.LessonDate.Minute())
		}
		return err
	}))
	assert.Equal(t, []string{"2026-01-05", "2026-01-12", "2026-01-19", "2026-01-26"}, days)
}

func TestCreateSchedule_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	h := NewCreateScheduleHandler(f.deps, nil)
	valid := CreateScheduleCommand{
		Actor: admin, SchoolID: schoolA, Branch: "WING_TSUN", LessonType: "GROUP",
		DayOfWeek: 2, StartTime: "18:00", StartDate: "2026-01-01", EndDate: "2026-02-01",
	}

	tests := []struct {
		name   string
		mutate func(c *CreateScheduleCommand)
	}{
		{"day out of range", func(c *CreateScheduleCommand) { c.DayOfWeek = 7 }},
		{"unknown lesson type", func(c *CreateScheduleCommand) { c.LessonType = "SPARRING" }},
		{"bad time", func(c *CreateScheduleCommand) { c.StartTime = "6pm" }},
		{"end before start", func(c *CreateScheduleCommand) { c.EndDate = "2025-12-01" }},
		{"end equals start", func(c *CreateScheduleCommand) { c.EndDate = c.StartDate }},
		{"bad date", func(c *CreateScheduleCommand) { c.StartDate = "01/01/2026" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := valid
			tt.mutate(&cmd)
			_, err := h.Handle(f.ctx, cmd)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}

	other := valid
	other.Actor = manager
	other.SchoolID = schoolB
	_, err := h.Handle(f.ctx, other)
	assert.True(t, shared.IsForbidden(err))
}

func TestExtendSchedule_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	res := createMondaySchedule(t, f, admin, "2026-01-31")
	h := NewExtendScheduleHandler(f.deps, nil)

	first, err := h.Handle(f.ctx, ExtendScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID, NewEndDate: "2026-02-28"})
	require.NoError(t, err)
	assert.Equal(t, 4, first.LessonsCreated)

	second, err := h.Handle(f.ctx, ExtendScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID, NewEndDate: "2026-02-28"})
	require.NoError(t, err)
	assert.Zero(t, second.LessonsCreated)

	refill, err := h.Handle(f.ctx, ExtendScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID})
	require.NoError(t, err)
	assert.Zero(t, refill.LessonsCreated)

	_, err = h.Handle(f.ctx, ExtendScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID, NewEndDate: "2026-02-01"})
	assert.True(t, shared.IsValidation(err))
}

type countingLocker struct {
	mu       sync.Mutex
	acquired []string
}

func (l *countingLocker) Lock(_ context.Context, resource string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, resource)
	return func() {}, nil
}

func TestDeactivateSchedule_KeepsPastAndAttendedLessons(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	res := createMondaySchedule(t, f, admin, "2026-01-27")
	require.Equal(t, 4, res.LessonsCreated)

	var lessons []*lesson.Lesson
	require.NoError(t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		lessons, err = repos.Lessons.ListBySchedule(ctx, res.Schedule.ID)
		return err
	}))
	// Attend the past lesson on the 19th.
	_, err := NewRecordAttendanceHandler(f.deps).Handle(f.ctx, RecordAttendanceCommand{Actor: admin, LessonID: lessons[2].ID, StudentID: st.ID})
	require.NoError(t, err)

	deps := f.deps
	deps.Clock = timeutil.FixedClock(time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC))
	locker := &countingLocker{}
	out, err := NewDeactivateScheduleHandler(deps, locker).Handle(f.ctx, DeactivateScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID})
	require.NoError(t, err)

	assert.Equal(t, 1, out.LessonsRemoved)
	assert.False(t, out.Schedule.IsActive)
	assert.Equal(t, []string{"schedule:" + res.Schedule.ID}, locker.acquired)

	var remaining []string
	require.NoError(t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		ls, err := repos.Lessons.ListBySchedule(ctx, res.Schedule.ID)
		for _, l := range ls {
			remaining = append(remaining, l.DayKey())
		}
		return err
	}))
	assert.Equal(t, []string{"2026-01-05", "2026-01-12", "2026-01-19"}, remaining)

	_, err = NewExtendScheduleHandler(f.deps, nil).Handle(f.ctx, ExtendScheduleCommand{Actor: admin, ScheduleID: res.Schedule.ID})
	assert.True(t, shared.IsConflict(err), "inactive schedule cannot be extended, got %v", err)
}

func TestScheduleCommands_ProceedWhenLockIsUnavailable(t *testing.T) {
	f := newFixture(t)
	res := createMondaySchedule(t, f, admin, "2026-01-31")

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	cache := redisstore.NewCacheFromClient(client)
	defer cache.Close()
	breaker := circuitbreaker.CacheBreaker("schedule-lock", nil)
	locker := redisstore.NewLocker(cache, time.Second, breaker, nil)

	ext, err := NewExtendScheduleHandler(f.deps, locker).Handle(f.ctx, ExtendScheduleCommand{
		Actor: admin, ScheduleID: res.Schedule.ID, NewEndDate: "2026-02-28",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, ext.LessonsCreated)

	deps := f.deps
	deps.Clock = timeutil.FixedClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	out, err := NewDeactivateScheduleHandler(deps, locker).Handle(f.ctx, DeactivateScheduleCommand{
		Actor: admin, ScheduleID: res.Schedule.ID,
	})
	require.NoError(t, err)
	assert.False(t, out.Schedule.IsActive)
	assert.Equal(t, 4, out.LessonsRemoved)
}

// ══════════════════════════════════════════════════════════════════════════════
// SEMINARS
// ══════════════════════════════════════════════════════════════════════════════

func (f *fixture) seminar(eventType seminar.EventType) *seminar.Event {
	f.t.Helper()
	e, err := NewCreateEventHandler(f.deps).Handle(f.ctx, CreateEventCommand{
		Actor: admin, Name: "Spring seminar", Type: string(eventType), EventDate: "2026-04-11",
	})
	require.NoError(f.t, err)
	return e
}

func TestEvaluateSeminar_PromotesExaminedBranchesOnly(t *testing.T) {
	f := newFixture(t)
	passing := f.enroll(schoolA, "Aruzhan")
	failing := f.enroll(schoolA, "Dias")
	e := f.seminar(seminar.TypeSeminar)

	register := NewRegisterForEventHandler(f.deps)
	_, err := register.Handle(f.ctx, RegisterForEventCommand{
		Actor: manager, EventID: e.ID, StudentID: passing.ID,
		RegisterWT: true, RegisterEscrima: true, WillTakeExam: true, ExamWT: true,
	})
	require.NoError(t, err)
	_, err = register.Handle(f.ctx, RegisterForEventCommand{
		Actor: shared.Actor{UserID: failing.UserID, Role: shared.RoleMember}, EventID: e.ID, StudentID: failing.ID,
		RegisterWT: true, WillTakeExam: true, ExamWT: true,
	})
	require.NoError(t, err)

	res, err := NewEvaluateSeminarHandler(f.deps, nil, EvaluationOptions{}).Handle(f.ctx, EvaluateSeminarCommand{
		Actor: admin, EventID: e.ID, PassingStudentIDs: []string{passing.ID, "not-registered"},
	})
	require.NoError(t, err)

	assert.True(t, res.Event.IsCompleted)
	require.Len(t, res.Evaluations, 1)
	ev := res.Evaluations[0]
	assert.Equal(t, shared.BranchWingTsun, ev.Branch)
	assert.Equal(t, 1, ev.GradeBefore)
	assert.Equal(t, 2, ev.GradeAfter)
	assert.Equal(t, admin.UserID, ev.EvaluatedBy)

	assert.Equal(t, 2, f.progress(passing.ID, shared.BranchWingTsun).CurrentGrade)
	assert.Equal(t, 1, f.progress(passing.ID, shared.BranchEscrima).CurrentGrade)
	assert.Equal(t, 1, f.progress(failing.ID, shared.BranchWingTsun).CurrentGrade)
	assert.Contains(t, res.Skipped, SkippedStudent{StudentID: "not-registered", Reason: SkipNotRegistered})

	var stored []*seminar.Evaluation
	require.NoError(t, f.store.ReadOnly(f.ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		stored, err = repos.Seminars.ListEvaluations(ctx, e.ID)
		return err
	}))
	assert.Len(t, stored, 1)

	_, err = NewEvaluateSeminarHandler(f.deps, nil, EvaluationOptions{}).Handle(f.ctx, EvaluateSeminarCommand{
		Actor: admin, EventID: e.ID, PassingStudentIDs: []string{passing.ID},
	})
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 2, f.progress(passing.ID, shared.BranchWingTsun).CurrentGrade)

	_, err = register.Handle(f.ctx, RegisterForEventCommand{Actor: admin, EventID: e.ID, StudentID: passing.ID})
	assert.True(t, shared.IsConflict(err))
}

func TestEvaluateSeminar_EmptyListStillSeals(t *testing.T) {
	f := newFixture(t)
	e := f.seminar(seminar.TypeSeminar)

	res, err := NewEvaluateSeminarHandler(f.deps, nil, EvaluationOptions{}).Handle(f.ctx, EvaluateSeminarCommand{Actor: admin, EventID: e.ID})
	require.NoError(t, err)
	assert.True(t, res.Event.IsCompleted)
	assert.Empty(t, res.Evaluations)
	assert.Contains(t, f.auditActions(audit.EntityEvent), audit.ActionEventCompleted)
}

func TestEvaluateSeminar_Guards(t *testing.T) {
	f := newFixture(t)
	plain := f.seminar(seminar.TypeEvent)
	h := NewEvaluateSeminarHandler(f.deps, nil, EvaluationOptions{})

	_, err := h.Handle(f.ctx, EvaluateSeminarCommand{Actor: admin, EventID: plain.ID})
	assert.True(t, shared.IsConflict(err))

	sem := f.seminar(seminar.TypeSeminar)
	_, err = h.Handle(f.ctx, EvaluateSeminarCommand{Actor: manager, EventID: sem.ID})
	assert.True(t, shared.IsForbidden(err))

	_, err = h.Handle(f.ctx, EvaluateSeminarCommand{Actor: admin, EventID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestEvaluateSeminar_RequireEligibility(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	e := f.seminar(seminar.TypeSeminar)
	_, err := NewRegisterForEventHandler(f.deps).Handle(f.ctx, RegisterForEventCommand{
		Actor: admin, EventID: e.ID, StudentID: st.ID, WillTakeExam: true, ExamWT: true,
	})
	require.NoError(t, err)

	res, err := NewEvaluateSeminarHandler(f.deps, nil, EvaluationOptions{RequireEligibility: true}).Handle(f.ctx,
		EvaluateSeminarCommand{Actor: admin, EventID: e.ID, PassingStudentIDs: []string{st.ID}})
	require.NoError(t, err)
	assert.Empty(t, res.Evaluations)
	assert.Equal(t, []SkippedStudent{{StudentID: st.ID, Reason: SkipNotEligible + ":" + string(shared.BranchWingTsun)}}, res.Skipped)
	assert.True(t, res.Event.IsCompleted)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

func TestChangeGrade(t *testing.T) {
	f := newFixture(t)
	st := f.enroll(schoolA, "Aruzhan")
	h := NewChangeGradeHandler(f.deps)

	_, err := h.Handle(f.ctx, ChangeGradeCommand{Actor: admin, StudentID: st.ID, Branch: "ESCRIMA", NewGrade: 4, Note: "  "})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(f.ctx, ChangeGradeCommand{Actor: manager, StudentID: st.ID, Branch: "ESCRIMA", NewGrade: 4, Note: "transfer"})
	assert.True(t, shared.IsForbidden(err))

	res, err := h.Handle(f.ctx, ChangeGradeCommand{Actor: admin, StudentID: st.ID, Branch: "ESCRIMA", NewGrade: 4, Note: "transfer"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.OldGrade)
	assert.Equal(t, 4, f.progress(st.ID, shared.BranchEscrima).CurrentGrade)
	assert.Contains(t, f.auditActions(audit.EntityStudentProgress), audit.ActionManualGradeChange)

	_, err = h.Handle(f.ctx, ChangeGradeCommand{Actor: admin, StudentID: "ghost", Branch: "ESCRIMA", NewGrade: 2, Note: "x"})
	assert.True(t, shared.IsNotFound(err))
}

func TestSaveRequirement(t *testing.T) {
	f := newFixture(t)
	h := NewSaveRequirementHandler(f.deps)

	created, err := h.Handle(f.ctx, SaveRequirementCommand{
		Actor: admin, Branch: "WING_TSUN", Grade: 3, GradeName: "3. Schülergrad", RequiredHours: 50, MinimumHours: 40,
	})
	require.NoError(t, err)

	_, err = h.Handle(f.ctx, SaveRequirementCommand{
		Actor: admin, Branch: "WING_TSUN", Grade: 3, GradeName: "dup", RequiredHours: 50, MinimumHours: 40,
	})
	assert.True(t, shared.IsConflict(err))

	_, err = h.Handle(f.ctx, SaveRequirementCommand{
		Actor: admin, ID: created.ID, GradeName: "3. SG", RequiredHours: 30, MinimumHours: 40,
	})
	assert.True(t, shared.IsValidation(err), "minimum above required must fail, got %v", err)

	updated, err := h.Handle(f.ctx, SaveRequirementCommand{
		Actor: admin, ID: created.ID, GradeName: "3. SG", RequiredHours: 56, MinimumHours: 46,
	})
	require.NoError(t, err)
	assert.Equal(t, 56.0, updated.RequiredHours)
	assert.Equal(t, shared.BranchWingTsun, updated.Branch)
}
