// Package memory implements the unit of work entirely in process. It is the
// test double behind the application and HTTP tests; cmd/api always runs on
// PostgreSQL.
//
// All work is serialized behind one mutex and runs against a snapshot that is
// only swapped in when the work succeeds, so a failed unit leaves no trace.
package memory

import (
	"context"
	"sync"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
)

type state struct {
	progress      map[string]progression.StudentProgress
	requirements  map[string]progression.GradeRequirement
	lessons       map[string]lesson.Lesson
	schedules     map[string]lesson.LessonSchedule
	attendance    map[string]lesson.Attendance
	students      map[string]student.Student
	schools       map[string]string
	managers      map[string]map[string]bool
	events        map[string]seminar.Event
	registrations map[string]seminar.Registration
	evaluations   map[string]seminar.Evaluation
	audit         []audit.Entry
}

func newState() *state {
	return &state{
		progress:      map[string]progression.StudentProgress{},
		requirements:  map[string]progression.GradeRequirement{},
		lessons:       map[string]lesson.Lesson{},
		schedules:     map[string]lesson.LessonSchedule{},
		attendance:    map[string]lesson.Attendance{},
		students:      map[string]student.Student{},
		schools:       map[string]string{},
		managers:      map[string]map[string]bool{},
		events:        map[string]seminar.Event{},
		registrations: map[string]seminar.Registration{},
		evaluations:   map[string]seminar.Evaluation{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	managers := make(map[string]map[string]bool, len(s.managers))
	for user, schools := range s.managers {
		managers[user] = copyMap(schools)
	}
	return &state{
		progress:      copyMap(s.progress),
		requirements:  copyMap(s.requirements),
		lessons:       copyMap(s.lessons),
		schedules:     copyMap(s.schedules),
		attendance:    copyMap(s.attendance),
		students:      copyMap(s.students),
		schools:       copyMap(s.schools),
		managers:      managers,
		events:        copyMap(s.events),
		registrations: copyMap(s.registrations),
		evaluations:   copyMap(s.evaluations),
		audit:         append([]audit.Entry(nil), s.audit...),
	}
}

// Store is an in-memory uow.UnitOfWork.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

var _ uow.UnitOfWork = (*Store)(nil)

// Do runs fn against a snapshot and commits it only if fn succeeds.
func (s *Store) Do(ctx context.Context, fn uow.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, repositories(work)); err != nil {
		return err
	}
	s.state = work
	return nil
}

// ReadOnly runs fn against a snapshot that is always discarded.
func (s *Store) ReadOnly(ctx context.Context, fn uow.Work) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, repositories(s.state.clone()))
}

func repositories(st *state) uow.Repositories {
	return uow.Repositories{
		Progress:     &progressRepo{st: st},
		Requirements: &requirementRepo{st: st},
		Lessons:      &lessonRepo{st: st},
		Schedules:    &scheduleRepo{st: st},
		Attendance:   &attendanceRepo{st: st},
		Students:     &studentRepo{st: st},
		Seminars:     &seminarRepo{st: st},
		Audit:        &auditRepo{st: st},
	}
}

// AddSchool registers a school name used by reports.
func (s *Store) AddSchool(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.schools[id] = name
}

// AssignManager makes userID a manager of schoolID.
func (s *Store) AssignManager(userID, schoolID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.managers[userID] == nil {
		s.state.managers[userID] = map[string]bool{}
	}
	s.state.managers[userID][schoolID] = true
}
