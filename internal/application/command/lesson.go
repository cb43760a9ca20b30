package command

import (
	"context"
	"fmt"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// CreateLessonCommand schedules a single lesson outside any weekly schedule.
type CreateLessonCommand struct {
	Actor      shared.Actor
	SchoolID   string
	Branch     string
	LessonType string
	Date       string
	StartTime  string
	Notes      string
}

// CreateLessonHandler handles CreateLessonCommand.
type CreateLessonHandler struct {
	deps      Deps
	durations lesson.Durations
}

// NewCreateLessonHandler creates a new CreateLessonHandler.
func NewCreateLessonHandler(deps Deps, durations lesson.Durations) *CreateLessonHandler {
	if durations == nil {
		durations = lesson.DefaultDurations()
	}
	return &CreateLessonHandler{deps: deps.withDefaults(), durations: durations}
}

// Handle executes the command.
func (h *CreateLessonHandler) Handle(ctx context.Context, cmd CreateLessonCommand) (*lesson.Lesson, error) {
	const op = "CreateLesson"
	branch, err := shared.ParseBranch(cmd.Branch)
	if err != nil {
		return nil, err
	}
	lessonType, err := lesson.ParseLessonType(cmd.LessonType)
	if err != nil {
		return nil, err
	}
	day, err := parseDate(cmd.Date, h.deps.Location, op, "lesson_date")
	if err != nil {
		return nil, err
	}
	at, err := parseTimeOfDay(cmd.StartTime, op, "start_time")
	if err != nil {
		return nil, err
	}
	duration, err := h.durations.For(lessonType)
	if err != nil {
		return nil, err
	}
	l, err := lesson.NewLesson(cmd.SchoolID, branch, lessonType, at.On(day), duration, cmd.Actor.UserID, cmd.Notes)
	if err != nil {
		return nil, err
	}

	err = h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, l.SchoolID, op); err != nil {
			return err
		}
		if err := repos.Lessons.Create(ctx, l); err != nil {
			return err
		}
		return repos.Audit.Append(ctx, audit.NewEntry(audit.ActionLessonCreated, audit.EntityLesson, l.ID, cmd.Actor,
			fmt.Sprintf("%s %s lesson on %s at %s", l.Branch, l.LessonType, timeutil.FormatDate(l.Day), at)))
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("lesson created",
		logger.LessonID(l.ID),
		logger.SchoolID(l.SchoolID))
	return l, nil
}

// DeleteLessonCommand removes a lesson nobody attended.
type DeleteLessonCommand struct {
	Actor    shared.Actor
	LessonID string
}

// DeleteLessonHandler handles DeleteLessonCommand.
type DeleteLessonHandler struct {
	deps Deps
}

// NewDeleteLessonHandler creates a new DeleteLessonHandler.
func NewDeleteLessonHandler(deps Deps) *DeleteLessonHandler {
	return &DeleteLessonHandler{deps: deps.withDefaults()}
}

// Handle executes the command. A lesson with attendance is a conflict.
func (h *DeleteLessonHandler) Handle(ctx context.Context, cmd DeleteLessonCommand) error {
	const op = "DeleteLesson"
	if cmd.LessonID == "" {
		return shared.Validationf("command", op, "lesson_id is required")
	}

	err := h.deps.UoW.Do(ctx, func(ctx context.Context, repos uow.Repositories) error {
		l, err := repos.Lessons.Get(ctx, cmd.LessonID)
		if err != nil {
			return err
		}
		if err := authorizeSchool(ctx, repos.Students, cmd.Actor, l.SchoolID, op); err != nil {
			return err
		}
		if err := repos.Lessons.Delete(ctx, l.ID); err != nil {
			return err
		}
		return repos.Audit.Append(ctx, audit.NewEntry(audit.ActionLessonDeleted, audit.EntityLesson, l.ID, cmd.Actor,
			fmt.Sprintf("Deleted %s lesson on %s", l.Branch, timeutil.FormatDate(l.Day))))
	})
	if err != nil {
		return err
	}

	h.deps.Logger.Info("lesson deleted", logger.LessonID(cmd.LessonID))
	return nil
}
