// Package uow defines the transactional persistence boundary the application
// layer runs against. Each command executes inside exactly one unit of work:
// every repository call made through the provided Repositories commits
// together or not at all.
package uow

import (
	"context"

	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
)

// Repositories bundles the repositories bound to one transaction.
type Repositories struct {
	Progress     progression.ProgressRepository
	Requirements progression.RequirementRepository
	Lessons      lesson.LessonRepository
	Schedules    lesson.ScheduleRepository
	Attendance   lesson.AttendanceRepository
	Students     student.Repository
	Seminars     seminar.Repository
	Audit        audit.Repository
}

// Work is the body of a unit of work.
type Work func(ctx context.Context, repos Repositories) error

// UnitOfWork runs work atomically.
type UnitOfWork interface {
	// Do runs fn in a read-write transaction. If fn returns an error nothing
	// it did is kept.
	Do(ctx context.Context, fn Work) error

	// ReadOnly runs fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn Work) error
}
