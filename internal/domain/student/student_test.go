package student

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func TestStudentLifecycle(t *testing.T) {
	s, err := NewStudent("user-1", "school-1", " Ip Man ")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s.Status)
	assert.Equal(t, "Ip Man", s.FullName)

	require.NoError(t, s.Approve())
	assert.Equal(t, StatusApproved, s.Status)

	assert.True(t, shared.IsConflict(s.Approve()))
	assert.True(t, shared.IsConflict(s.Reject()))
}

func TestNewStudent_Validation(t *testing.T) {
	_, err := NewStudent("u", "", "name")
	assert.True(t, shared.IsValidation(err))

	_, err = NewStudent("u", "school", "")
	assert.True(t, shared.IsValidation(err))
}
