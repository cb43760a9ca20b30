package seminar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func newSeminar(t *testing.T) *Event {
	t.Helper()
	e, err := NewEvent(EventParams{
		Name:      "Spring seminar",
		Type:      TypeSeminar,
		EventDate: time.Date(2026, 4, 12, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return e
}

func TestNewEvent_Validation(t *testing.T) {
	_, err := NewEvent(EventParams{Name: " ", Type: TypeEvent, EventDate: time.Now()})
	assert.True(t, shared.IsValidation(err))

	_, err = NewEvent(EventParams{Name: "x", Type: "PARTY", EventDate: time.Now()})
	assert.True(t, shared.IsValidation(err))

	_, err = NewEvent(EventParams{Name: "x", Type: TypeEvent, Scope: ScopeSelectedSchools, EventDate: time.Now()})
	assert.True(t, shared.IsValidation(err))

	e, err := NewEvent(EventParams{Name: "x", Type: TypeEvent, Scope: ScopeSelectedSchools, SchoolIDs: []string{"s1"}, EventDate: time.Now()})
	require.NoError(t, err)
	assert.True(t, e.OpenTo("s1"))
	assert.False(t, e.OpenTo("s2"))
}

func TestRegister_ExamOnlyForSeminars(t *testing.T) {
	plain, err := NewEvent(EventParams{Name: "Summer camp", Type: TypeEvent, EventDate: time.Now()})
	require.NoError(t, err)

	reg, err := plain.Register(RegistrationParams{StudentID: "st", RegisterWT: true, WillTakeExam: true, ExamWT: true})
	require.NoError(t, err)
	assert.False(t, reg.WillTakeExam)
	assert.False(t, reg.ExamWT)
	assert.Empty(t, reg.ExamBranches())

	reg, err = newSeminar(t).Register(RegistrationParams{StudentID: "st", WillTakeExam: true, ExamWT: true, ExamEscrima: true})
	require.NoError(t, err)
	assert.Equal(t, []shared.Branch{shared.BranchWingTsun, shared.BranchEscrima}, reg.ExamBranches())
}

func TestRegister_RejectedOnCompletedEvent(t *testing.T) {
	e := newSeminar(t)
	require.NoError(t, e.Complete(time.Now()))

	_, err := e.Register(RegistrationParams{StudentID: "st"})
	assert.True(t, shared.IsConflict(err))
}

func TestEnsureEvaluable(t *testing.T) {
	e := newSeminar(t)
	assert.NoError(t, e.EnsureEvaluable())

	require.NoError(t, e.Complete(time.Now()))
	assert.True(t, shared.IsConflict(e.EnsureEvaluable()))
	assert.True(t, shared.IsConflict(e.Complete(time.Now())), "completion is a one-way latch")

	plain, err := NewEvent(EventParams{Name: "x", Type: TypeEvent, EventDate: time.Now()})
	require.NoError(t, err)
	assert.True(t, shared.IsConflict(plain.EnsureEvaluable()))
}
