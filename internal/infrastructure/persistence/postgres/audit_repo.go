package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
)

// AuditRepository implements audit.Repository on the append-only audit_logs
// table.
type AuditRepository struct {
	q Querier
}

// Append inserts one entry.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, performed_by, details, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, string(e.Action), e.EntityType, e.EntityID, e.PerformedBy, e.Details, e.OldValue, e.NewValue, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (r *AuditRepository) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var conds []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.EntityType != "" {
		add("entity_type", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id", f.EntityID)
	}
	if f.Action != "" {
		add("action", string(f.Action))
	}

	query := `SELECT id, action, entity_type, entity_id, performed_by, details, old_value, new_value, created_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC" + limitClause(f.Limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var action string
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &e.PerformedBy, &e.Details,
			&e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}
