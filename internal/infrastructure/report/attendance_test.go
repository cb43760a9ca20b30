package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

func TestWriteAttendanceXLSX(t *testing.T) {
	rows := []lesson.ReportRow{
		{
			LessonDate:    time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC),
			SchoolID:      "school-a",
			SchoolName:    "Almaty Central",
			Branch:        shared.BranchWingTsun,
			LessonType:    lesson.TypeGroup,
			StudentName:   "Aruzhan",
			HoursCredited: 2,
		},
		{
			LessonDate:    time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC),
			SchoolID:      "school-b",
			Branch:        shared.BranchEscrima,
			LessonType:    lesson.TypePrivate,
			StudentName:   "Dias",
			HoursCredited: 1.5,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteAttendanceXLSX(&buf, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(AttendanceSheet)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []string{"Date", "School", "Branch", "Lesson type", "Student", "Hours"}, got[0])
	assert.Equal(t, []string{"2026-01-05", "Almaty Central", "WING_TSUN", "GROUP", "Aruzhan", "2"}, got[1])
	assert.Equal(t, "school-b", got[2][1])
	assert.Equal(t, "3.5", got[3][5])
}

func TestWriteAttendanceXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAttendanceXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows(AttendanceSheet)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Total", got[1][4])
}
