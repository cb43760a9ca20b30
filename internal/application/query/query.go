// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/application/uow"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
	"github.com/wingtsun-academy/progression-engine/pkg/logger"
)

// Deps are the collaborators shared by every query handler.
type Deps struct {
	UoW      uow.UnitOfWork
	Table    *progression.RequirementTable
	Logger   *logger.Logger
	Location *time.Location
}

func (d Deps) withDefaults() Deps {
	if d.Table == nil {
		d.Table = progression.DefaultRequirementTable()
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return d
}

// authorizeSchoolRead lets administrators read everything and managers only
// the schools they are assigned to.
func authorizeSchoolRead(ctx context.Context, students student.Repository, actor shared.Actor, schoolID, op string) error {
	if actor.UserID == "" || !actor.Role.IsValid() {
		return shared.NewDomainError("query", op, shared.ErrUnauthorized, "authentication required")
	}
	if actor.Role.IsAdminOrAbove() {
		return nil
	}
	if actor.Role != shared.RoleManager {
		return shared.Forbiddenf("query", op, "manager role required")
	}
	if schoolID == "" {
		return shared.Validationf("query", op, "school_id is required for managers")
	}
	ok, err := students.ManagesSchool(ctx, actor.UserID, schoolID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Forbiddenf("query", op, "not a manager of school %s", schoolID)
	}
	return nil
}

func requireAuthenticated(actor shared.Actor, op string) error {
	if actor.UserID == "" || !actor.Role.IsValid() {
		return shared.NewDomainError("query", op, shared.ErrUnauthorized, "authentication required")
	}
	return nil
}

// resolveHours returns the thresholds of (branch, grade) and the catalog name
// of the grade, if the catalog has one.
func resolveHours(ctx context.Context, repos uow.Repositories, table *progression.RequirementTable, branch shared.Branch, grade int) (progression.Hours, string, error) {
	if branch == "" {
		return table.HoursForGrade(grade), "", nil
	}
	row, err := repos.Requirements.Find(ctx, branch, grade)
	if err != nil {
		return progression.Hours{}, "", err
	}
	name := ""
	if row != nil {
		name = row.GradeName
	}
	return progression.Resolve(table, row, grade), name, nil
}
