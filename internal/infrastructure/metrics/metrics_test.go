package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{shared.Validationf("x", "op", "bad"), "validation"},
		{shared.ErrAlreadyExists, "conflict"},
		{shared.NotFoundf("x", "op", "missing"), "not_found"},
		{shared.ErrUnauthorized, "forbidden"},
		{errors.New("db down"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

func TestMetrics_CountsAndServes(t *testing.T) {
	m := New()

	m.ObserveOperation("extend_schedule", time.Now(), nil)
	m.ObserveOperation("extend_schedule", time.Now(), shared.ErrInvalidState)
	require.NoError(t, m.RecordEvent(progression.NewGradeChangedEvent("s1", shared.BranchWingTsun, 1, 2, progression.ReasonManual)))
	m.ObserveRequest("POST", "/api/v1/schedules/:id/extend", "200", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()

	for _, line := range []string{
		`progression_operations_total{operation="extend_schedule",outcome="ok"} 1`,
		`progression_operations_total{operation="extend_schedule",outcome="conflict"} 1`,
		`progression_events_total{type="` + string(shared.EventGradeChanged) + `"} 1`,
		`progression_http_requests_total{method="POST",route="/api/v1/schedules/:id/extend",status="200"} 1`,
	} {
		assert.True(t, strings.Contains(body, line), "missing %s", line)
	}
}
