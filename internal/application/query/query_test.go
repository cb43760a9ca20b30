package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/persistence/memory"
)

var (
	admin   = shared.Actor{UserID: "admin-1", Role: shared.RoleAdmin}
	manager = shared.Actor{UserID: "manager-1", Role: shared.RoleManager}
)

func seed(t *testing.T, store *memory.Store, fn uow.Work) {
	t.Helper()
	require.NoError(t, store.Do(context.Background(), fn))
}

func TestHoursForGrade(t *testing.T) {
	store := memory.NewStore()
	h := NewHoursForGradeHandler(Deps{UoW: store})
	ctx := context.Background()

	tests := []struct {
		grade    int
		required float64
		minimum  float64
	}{
		{1, 54, 44},
		{3, 54, 44},
		{4, 60, 52},
		{8, 60, 52},
		{9, 96, 80},
		{12, 128, 110},
		{13, 0, 0},
	}
	for _, tt := range tests {
		res, err := h.Handle(ctx, HoursForGradeQuery{Grade: tt.grade})
		require.NoError(t, err)
		assert.Equal(t, tt.required, res.RequiredHours, "grade %d", tt.grade)
		assert.Equal(t, tt.minimum, res.MinimumHours, "grade %d", tt.grade)
	}

	_, err := h.Handle(ctx, HoursForGradeQuery{Grade: 0})
	assert.True(t, shared.IsValidation(err))
	_, err = h.Handle(ctx, HoursForGradeQuery{Grade: 3, Branch: "KARATE"})
	assert.True(t, shared.IsValidation(err))
}

func TestHoursForGrade_CatalogOverridesBand(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, repos uow.Repositories) error {
		r, err := progression.NewGradeRequirement(shared.BranchEscrima, 3, "3rd student grade", 40, 30)
		require.NoError(t, err)
		return repos.Requirements.Create(ctx, r)
	})
	h := NewHoursForGradeHandler(Deps{UoW: store})

	res, err := h.Handle(context.Background(), HoursForGradeQuery{Grade: 3, Branch: "ESCRIMA"})
	require.NoError(t, err)
	assert.Equal(t, 40.0, res.RequiredHours)
	assert.Equal(t, "3rd student grade", res.GradeName)

	res, err = h.Handle(context.Background(), HoursForGradeQuery{Grade: 3, Branch: "WING_TSUN"})
	require.NoError(t, err)
	assert.Equal(t, 54.0, res.RequiredHours)
}

func TestCheckEligibility(t *testing.T) {
	h := NewCheckEligibilityHandler(Deps{UoW: memory.NewStore()})
	ctx := context.Background()

	tests := []struct {
		completed float64
		grade     int
		want      progression.Eligibility
		remaining float64
	}{
		{54, 3, progression.Eligible, 0},
		{50, 3, progression.NeedsApproval, 4},
		{40, 3, progression.NotEligible, 14},
		{0, 20, progression.Eligible, 0},
	}
	for _, tt := range tests {
		res, err := h.Handle(ctx, CheckEligibilityQuery{Grade: tt.grade, CompletedHours: tt.completed})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Eligibility, "grade %d with %.0f hours", tt.grade, tt.completed)
		assert.Equal(t, tt.remaining, res.RemainingHours)
	}

	_, err := h.Handle(ctx, CheckEligibilityQuery{Grade: 3, CompletedHours: -1})
	assert.True(t, shared.IsValidation(err))
}

type mapCache struct {
	mu    sync.Mutex
	views map[string]*ProgressView
	hits  int
}

func (c *mapCache) Get(_ context.Context, id string) (*ProgressView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.views[id]
	if v != nil {
		c.hits++
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, v *ProgressView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[v.StudentID] = v
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, id)
	return nil
}

func seedStudent(t *testing.T, store *memory.Store, schoolID string, hours float64) *student.Student {
	t.Helper()
	st, err := student.NewStudent("user-"+schoolID, schoolID, "Aruzhan")
	require.NoError(t, err)
	seed(t, store, func(ctx context.Context, repos uow.Repositories) error {
		if err := repos.Students.Create(ctx, st); err != nil {
			return err
		}
		for _, b := range shared.AllBranches() {
			p, err := progression.NewStudentProgress(st.ID, b)
			if err != nil {
				return err
			}
			if err := repos.Progress.Create(ctx, p); err != nil {
				return err
			}
		}
		_, err := repos.Progress.AddHours(ctx, st.ID, shared.BranchWingTsun, hours)
		return err
	})
	return st
}

func TestGetStudentProgress(t *testing.T) {
	store := memory.NewStore()
	store.AssignManager(manager.UserID, "school-a")
	st := seedStudent(t, store, "school-a", 50)
	cache := &mapCache{views: map[string]*ProgressView{}}
	h := NewGetStudentProgressHandler(Deps{UoW: store}, cache)
	ctx := context.Background()

	view, err := h.Handle(ctx, GetStudentProgressQuery{Actor: manager, StudentID: st.ID})
	require.NoError(t, err)
	require.Len(t, view.Branches, 2)

	byBranch := map[shared.Branch]BranchProgressDTO{}
	for _, b := range view.Branches {
		byBranch[b.Branch] = b
	}
	wt := byBranch[shared.BranchWingTsun]
	assert.Equal(t, 1, wt.Grade)
	assert.Equal(t, 50.0, wt.CompletedHours)
	assert.Equal(t, 4.0, wt.RemainingHours)
	assert.Equal(t, progression.NeedsApproval, wt.Eligibility)
	assert.Equal(t, 54.0, byBranch[shared.BranchEscrima].RemainingHours)

	self := shared.Actor{UserID: st.UserID, Role: shared.RoleMember}
	_, err = h.Handle(ctx, GetStudentProgressQuery{Actor: self, StudentID: st.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	stranger := shared.Actor{UserID: "someone", Role: shared.RoleMember}
	_, err = h.Handle(ctx, GetStudentProgressQuery{Actor: stranger, StudentID: st.ID})
	assert.True(t, shared.IsForbidden(err))

	require.NoError(t, cache.Invalidate(ctx, st.ID))
	_, err = h.Handle(ctx, GetStudentProgressQuery{Actor: stranger, StudentID: st.ID})
	assert.True(t, shared.IsForbidden(err))
}

func TestListLessonsAndReport(t *testing.T) {
	store := memory.NewStore()
	store.AddSchool("school-a", "Almaty Central")
	store.AssignManager(manager.UserID, "school-a")
	st := seedStudent(t, store, "school-a", 0)

	var jan, feb *lesson.Lesson
	seed(t, store, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		jan, err = lesson.NewLesson("school-a", shared.BranchWingTsun, lesson.TypeGroup, time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC), 2, "u", "")
		require.NoError(t, err)
		feb, err = lesson.NewLesson("school-a", shared.BranchWingTsun, lesson.TypeGroup, time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC), 2, "u", "")
		require.NoError(t, err)
		require.NoError(t, repos.Lessons.Create(ctx, jan))
		require.NoError(t, repos.Lessons.Create(ctx, feb))
		_, err = repos.Attendance.Create(ctx, lesson.NewAttendance(jan, st.ID, "u"))
		return err
	})

	h := NewLessonsHandler(Deps{UoW: store})
	ctx := context.Background()

	lessons, err := h.ListLessons(ctx, LessonFilterQuery{Actor: manager, SchoolID: "school-a", From: "2026-01-01", To: "2026-01-10"})
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, jan.ID, lessons[0].ID)

	_, err = h.ListLessons(ctx, LessonFilterQuery{Actor: manager})
	assert.True(t, shared.IsValidation(err))
	_, err = h.ListLessons(ctx, LessonFilterQuery{Actor: manager, SchoolID: "school-b"})
	assert.True(t, shared.IsForbidden(err))
	_, err = h.ListLessons(ctx, LessonFilterQuery{Actor: admin, From: "2026-02-01", To: "2026-01-01"})
	assert.True(t, shared.IsValidation(err))

	rows, err := h.AttendanceReport(ctx, LessonFilterQuery{Actor: admin, SchoolID: "school-a"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Almaty Central", rows[0].SchoolName)
	assert.Equal(t, "Aruzhan", rows[0].StudentName)
	assert.Equal(t, 2.0, rows[0].HoursCredited)

	empty, err := h.ListLessonAttendance(ctx, admin, feb.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestListAudit_AdminOnly(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, repos uow.Repositories) error {
		return repos.Audit.Append(ctx, audit.NewEntry(audit.ActionLessonCreated, audit.EntityLesson, "l1", admin, "created"))
	})
	h := NewCatalogHandler(Deps{UoW: store})

	_, err := h.ListAudit(context.Background(), manager, audit.Filter{})
	assert.True(t, shared.IsForbidden(err))

	entries, err := h.ListAudit(context.Background(), admin, audit.Filter{EntityType: audit.EntityLesson})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionLessonCreated, entries[0].Action)
}
