// Package command contains the write operations of the engine. Each handler
// runs its whole operation inside one unit of work and publishes domain
// events only after that unit committed.
package command

import (
	"context"
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Locker serializes work on a named resource across processes.
type Locker interface {
	// Lock blocks until the resource is held or ctx ends. The returned
	// function releases it.
	Lock(ctx context.Context, resource string) (unlock func(), err error)
}

// Deps are the collaborators shared by every handler.
type Deps struct {
	UoW       uow.UnitOfWork
	Publisher shared.EventPublisher
	Logger    *logger.Logger
	Clock     timeutil.Clock

	// Location is the school time zone that date and time literals are
	// interpreted in.
	Location *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return d
}

// publish sends events after commit. A failing subscriber never fails the
// operation that already committed.
func (d Deps) publish(events []shared.Event) {
	for _, e := range events {
		if err := d.Publisher.Publish(e); err != nil {
			d.Logger.Warn("failed to publish event",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZATION
// ══════════════════════════════════════════════════════════════════════════════

func requireActor(actor shared.Actor, op string) error {
	if actor.UserID == "" || !actor.Role.IsValid() {
		return shared.NewDomainError("command", op, shared.ErrUnauthorized, "authentication required")
	}
	return nil
}

func requireAdmin(actor shared.Actor, op string) error {
	if err := requireActor(actor, op); err != nil {
		return err
	}
	if !actor.Role.IsAdminOrAbove() {
		return shared.Forbiddenf("command", op, "administrator role required")
	}
	return nil
}

// authorizeSchool lets administrators act anywhere and managers only on the
// schools they are assigned to.
func authorizeSchool(ctx context.Context, students student.Repository, actor shared.Actor, schoolID, op string) error {
	if err := requireActor(actor, op); err != nil {
		return err
	}
	if actor.Role.IsAdminOrAbove() {
		return nil
	}
	if actor.Role != shared.RoleManager {
		return shared.Forbiddenf("command", op, "manager role required")
	}
	ok, err := students.ManagesSchool(ctx, actor.UserID, schoolID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Forbiddenf("command", op, "not a manager of school %s", schoolID)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// resolveHours returns the thresholds of (branch, grade), preferring the
// catalog over the band table.
func resolveHours(ctx context.Context, repos uow.Repositories, table *progression.RequirementTable, branch shared.Branch, grade int) (progression.Hours, error) {
	row, err := repos.Requirements.Find(ctx, branch, grade)
	if err != nil {
		return progression.Hours{}, err
	}
	return progression.Resolve(table, row, grade), nil
}

// uniqueIDs drops blanks and repeats while keeping the first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func parseDate(value string, loc *time.Location, op, field string) (time.Time, error) {
	t, err := timeutil.ParseDate(value, loc)
	if err != nil {
		return time.Time{}, shared.WrapError("command", op, shared.ErrInvalidFormat, field+" must use YYYY-MM-DD", err)
	}
	return t, nil
}

func parseTimeOfDay(value, op, field string) (timeutil.TimeOfDay, error) {
	t, err := timeutil.ParseTimeOfDay(value)
	if err != nil {
		return timeutil.TimeOfDay{}, shared.WrapError("command", op, shared.ErrInvalidFormat, field+" must use HH:MM", err)
	}
	return t, nil
}
