package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func TestStore_RollsBackFailedWork(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p, err := progression.NewStudentProgress("s1", shared.BranchWingTsun)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		require.NoError(t, repos.Progress.Create(ctx, p))
		_, err := repos.Progress.AddHours(ctx, "s1", shared.BranchWingTsun, 2)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		_, err := repos.Progress.Get(ctx, "s1", shared.BranchWingTsun)
		return err
	})
	assert.True(t, shared.IsNotFound(err))
}

func TestStore_ProgressLedger(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		p, _ := progression.NewStudentProgress("s1", shared.BranchEscrima)
		require.NoError(t, repos.Progress.Create(ctx, p))
		assert.True(t, shared.IsAlreadyExists(repos.Progress.Create(ctx, p)))

		updated, err := repos.Progress.AddHours(ctx, "s1", shared.BranchEscrima, 2)
		require.NoError(t, err)
		assert.Equal(t, 2.0, updated.CompletedHours)

		updated, err = repos.Progress.SubtractHours(ctx, "s1", shared.BranchEscrima, 5)
		require.NoError(t, err)
		assert.Equal(t, 0.0, updated.CompletedHours)

		updated, err = repos.Progress.IncrementGrade(ctx, "s1", shared.BranchEscrima)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.CurrentGrade)

		old, err := repos.Progress.SetGrade(ctx, "s1", shared.BranchEscrima, 7)
		require.NoError(t, err)
		assert.Equal(t, 2, old)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ScheduleLessonsAreUniquePerDay(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	scheduleID := "sched-1"
	at := time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC)

	newLesson := func() *lesson.Lesson {
		l, err := lesson.NewLesson("school", shared.BranchWingTsun, lesson.TypeGroup, at, 2, "u", "")
		require.NoError(t, err)
		l.ScheduleID = &scheduleID
		return l
	}

	err := store.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		inserted, err := repos.Lessons.CreateForSchedule(ctx, newLesson())
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repos.Lessons.CreateForSchedule(ctx, newLesson())
		require.NoError(t, err)
		assert.False(t, inserted)

		lessons, err := repos.Lessons.ListBySchedule(ctx, scheduleID)
		require.NoError(t, err)
		assert.Len(t, lessons, 1)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_AttendanceDeleteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		l, _ := lesson.NewLesson("school", shared.BranchWingTsun, lesson.TypePrivate, time.Now(), 2, "u", "")
		require.NoError(t, repos.Lessons.Create(ctx, l))

		a := lesson.NewAttendance(l, "s1", "u")
		inserted, err := repos.Attendance.Create(ctx, a)
		require.NoError(t, err)
		assert.True(t, inserted)

		inserted, err = repos.Attendance.Create(ctx, lesson.NewAttendance(l, "s1", "u"))
		require.NoError(t, err)
		assert.False(t, inserted)

		assert.True(t, shared.IsConflict(repos.Lessons.Delete(ctx, l.ID)))

		deleted, err := repos.Attendance.Delete(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 2.0, deleted.HoursCredited)

		_, err = repos.Attendance.Delete(ctx, a.ID)
		assert.True(t, shared.IsNotFound(err))

		return repos.Lessons.Delete(ctx, l.ID)
	})
	require.NoError(t, err)
}

func TestStore_ManagesSchool(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.AssignManager("mgr", "school-a")

	_ = store.ReadOnly(ctx, func(ctx context.Context, repos uow.Repositories) error {
		ok, err := repos.Students.ManagesSchool(ctx, "mgr", "school-a")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, _ = repos.Students.ManagesSchool(ctx, "mgr", "school-b")
		assert.False(t, ok)
		return nil
	})
}
