package command

import (
	"context"
	"fmt"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// materialize inserts a lesson for every date the schedule is missing and
// returns how many were actually inserted. The per-day unique constraint
// absorbs a concurrent writer that got there first.
func materialize(ctx context.Context, repos uow.Repositories, s *lesson.LessonSchedule) (int, error) {
	existing, err := repos.Lessons.ListBySchedule(ctx, s.ID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, day := range s.MissingDates(existing) {
		inserted, err := repos.Lessons.CreateForSchedule(ctx, s.LessonOn(day))
		if err != nil {
			return created, err
		}
		if inserted {
			created++
		}
	}
	return created, nil
}

func lockSchedule(ctx context.Context, locker Locker, scheduleID string) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	return locker.Lock(ctx, "schedule:"+scheduleID)
}

// ══════════════════════════════════════════════════════════════════════════════
// CREATE SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// CreateScheduleCommand describes a new weekly schedule. Dates and time are
// the literal YYYY-MM-DD and HH:MM values received from the caller.
type CreateScheduleCommand struct {
	Actor      shared.Actor
	SchoolID   string
	Branch     string
	LessonType string
	DayOfWeek  int
	StartTime  string
	StartDate  string
	EndDate    string
}

// CreateScheduleResult carries the schedule and its generated lesson count.
type CreateScheduleResult struct {
	Schedule       *lesson.LessonSchedule `json:"schedule"`
	LessonsCreated int                    `json:"lessons_created"`
}

// CreateScheduleHandler handles CreateScheduleCommand.
type CreateScheduleHandler struct {
	deps      Deps
	durations lesson.Durations
}

// NewCreateScheduleHandler creates a new CreateScheduleHandler.
func NewCreateScheduleHandler(deps Deps, durations lesson.Durations) *CreateScheduleHandler {
	if durations == nil {
		durations = lesson.DefaultDurations()
	}
	return &CreateScheduleHandler{deps: deps.withDefaults(), durations: durations}
}

func (h *CreateScheduleHandler) params(cmd CreateScheduleCommand) (lesson.ScheduleParams, error) {
	const op = "CreateSchedule"
	branch, err := shared.ParseBranch(cmd.Branch)
	if err != nil {
		return lesson.ScheduleParams{}, err
	}
	lessonType, err := lesson.ParseLessonType(cmd.LessonType)
	if err != nil {
		return lesson.ScheduleParams{}, err
	}
	startTime, err := parseTimeOfDay(cmd.StartTime, op, "start_time")
	if err != nil {
		return lesson.ScheduleParams{}, err
	}
	start, err := parseDate(cmd.StartDate, h.deps.Location, op, "start_date")
	if err != nil {
		return lesson.ScheduleParams{}, err
	}
	end, err := parseDate(cmd.EndDate, h.deps.Location, op, "end_date")
	if err != nil {
		return lesson.ScheduleParams{}, err
	}
	return lesson.ScheduleParams{
		SchoolID:   cmd.SchoolID,
		Branch:     branch,
		LessonType: lessonType,
		DayOfWeek:  cmd.DayOfWeek,
		StartTime:  startTime,
		StartDate:  start,
		EndDate:    end,
		CreatedBy:  cmd.Actor.UserID,
	}, nil
}

// Handle executes the command.
func (h *CreateScheduleHandler) Handle(ctx context.Context, cmd CreateScheduleCommand) (*CreateScheduleResult, error) {
	p, err := h.params(cmd)
	if err != nil {
		return nil, err
	}
	s, err := lesson.NewSchedule(p, h.durations)
	if err != nil {
		return nil, err
	}

	var created int
	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, s.SchoolID, "CreateSchedule"); err != nil {
			return err
		}
		if err := repos.Schedules.Create(ctx, s); err != nil {
			return err
		}
		n, err := materialize(ctx, repos, s)
		if err != nil {
			return err
		}
		created = n

		return repos.Audit.Append(ctx, audit.NewEntry(audit.ActionScheduleCreated, audit.EntityLessonSchedule, s.ID, cmd.Actor,
			fmt.Sprintf("Weekly %s %s schedule on day %d at %s from %s to %s, %d lessons",
				s.Branch, s.LessonType, s.DayOfWeek, s.StartTime,
				timeutil.FormatDate(s.StartDate), timeutil.FormatDate(s.EndDate), created)))
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("schedule created",
		logger.ScheduleID(s.ID),
		logger.SchoolID(s.SchoolID),
		logger.Count(created))
	h.deps.publish([]shared.Event{lesson.NewScheduleEvent(shared.EventScheduleCreated, s, created)})
	return &CreateScheduleResult{Schedule: s, LessonsCreated: created}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXTEND SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// ExtendScheduleCommand fills in missing lessons, optionally after moving the
// end date. An empty NewEndDate keeps the current end date.
type ExtendScheduleCommand struct {
	Actor      shared.Actor
	ScheduleID string
	NewEndDate string
}

// ExtendScheduleResult carries the schedule and the lessons added.
type ExtendScheduleResult struct {
	Schedule       *lesson.LessonSchedule `json:"schedule"`
	LessonsCreated int                    `json:"lessons_created"`
}

// ExtendScheduleHandler handles ExtendScheduleCommand. Extending twice to the
// same end date creates nothing the second time.
type ExtendScheduleHandler struct {
	deps   Deps
	locker Locker
}

// NewExtendScheduleHandler creates a new ExtendScheduleHandler. locker may be
// nil, in which case the schedule row lock alone serializes extensions.
func NewExtendScheduleHandler(deps Deps, locker Locker) *ExtendScheduleHandler {
	return &ExtendScheduleHandler{deps: deps.withDefaults(), locker: locker}
}

// Handle executes the command.
func (h *ExtendScheduleHandler) Handle(ctx context.Context, cmd ExtendScheduleCommand) (*ExtendScheduleResult, error) {
	const op = "ExtendSchedule"
	if cmd.ScheduleID == "" {
		return nil, shared.Validationf("command", op, "schedule_id is required")
	}
	var newEnd time.Time
	if cmd.NewEndDate != "" {
		var err error
		if newEnd, err = parseDate(cmd.NewEndDate, h.deps.Location, op, "new_end_date"); err != nil {
			return nil, err
		}
	}

	unlock, err := lockSchedule(ctx, h.locker, cmd.ScheduleID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *ExtendScheduleResult
	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		s, err := repos.Schedules.GetForUpdate(ctx, cmd.ScheduleID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, s.SchoolID, op); err != nil {
			return err
		}

		oldEnd := s.EndDate
		if newEnd.IsZero() {
			err = s.EnsureActive()
		} else {
			err = s.ExtendTo(newEnd)
		}
		if err != nil {
			return err
		}
		if !s.EndDate.Equal(oldEnd) {
			if err := repos.Schedules.Update(ctx, s); err != nil {
				return err
			}
		}

		created, err := materialize(ctx, repos, s)
		if err != nil {
			return err
		}
		result = &ExtendScheduleResult{Schedule: s, LessonsCreated: created}

		entry := audit.NewEntry(audit.ActionScheduleExtended, audit.EntityLessonSchedule, s.ID, cmd.Actor,
			fmt.Sprintf("Extended schedule, %d lessons added", created)).
			WithValues(timeutil.FormatDate(oldEnd), timeutil.FormatDate(s.EndDate))
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("schedule extended",
		logger.ScheduleID(cmd.ScheduleID),
		logger.Date("end_date", result.Schedule.EndDate),
		logger.Count(result.LessonsCreated))
	h.deps.publish([]shared.Event{lesson.NewScheduleEvent(shared.EventScheduleExtended, result.Schedule, result.LessonsCreated)})
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEACTIVATE SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

// DeactivateScheduleCommand switches a schedule off and removes its future
// lessons that nobody attended.
type DeactivateScheduleCommand struct {
	Actor      shared.Actor
	ScheduleID string
}

// DeactivateScheduleResult carries the schedule and the lessons removed.
type DeactivateScheduleResult struct {
	Schedule       *lesson.LessonSchedule `json:"schedule"`
	LessonsRemoved int                    `json:"lessons_removed"`
}

// DeactivateScheduleHandler handles DeactivateScheduleCommand.
type DeactivateScheduleHandler struct {
	deps   Deps
	locker Locker
}

// NewDeactivateScheduleHandler creates a new DeactivateScheduleHandler.
func NewDeactivateScheduleHandler(deps Deps, locker Locker) *DeactivateScheduleHandler {
	return &DeactivateScheduleHandler{deps: deps.withDefaults(), locker: locker}
}

// Handle executes the command. Past lessons and lessons with attendance are
// kept.
func (h *DeactivateScheduleHandler) Handle(ctx context.Context, cmd DeactivateScheduleCommand) (*DeactivateScheduleResult, error) {
	const op = "DeactivateSchedule"
	if cmd.ScheduleID == "" {
		return nil, shared.Validationf("command", op, "schedule_id is required")
	}

	unlock, err := lockSchedule(ctx, h.locker, cmd.ScheduleID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var result *DeactivateScheduleResult
	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		s, err := repos.Schedules.GetForUpdate(ctx, cmd.ScheduleID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, s.SchoolID, op); err != nil {
			return err
		}

		wasActive := s.IsActive
		s.Deactivate()
		if err := repos.Schedules.Update(ctx, s); err != nil {
			return err
		}

		removed, err := repos.Lessons.DeleteFutureUnattended(ctx, s.ID, h.deps.Clock.Now())
		if err != nil {
			return err
		}
		result = &DeactivateScheduleResult{Schedule: s, LessonsRemoved: removed}

		entry := audit.NewEntry(audit.ActionScheduleDisabled, audit.EntityLessonSchedule, s.ID, cmd.Actor,
			fmt.Sprintf("Deactivated schedule, %d future lessons removed", removed)).
			WithValues(fmt.Sprint(wasActive), "false")
		return repos.Audit.Append(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("schedule deactivated",
		logger.ScheduleID(cmd.ScheduleID),
		logger.Count(result.LessonsRemoved))
	h.deps.publish([]shared.Event{lesson.NewScheduleEvent(shared.EventScheduleDeactivated, result.Schedule, result.LessonsRemoved)})
	return result, nil
}
