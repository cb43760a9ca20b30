// Package report renders attendance exports.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/pkg/timeutil"
)

// AttendanceSheet is the name of the single sheet in the export.
const AttendanceSheet = "Attendance"

// ContentType is the MIME type of an XLSX workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var attendanceHeaders = []string{"Date", "School", "Branch", "Lesson type", "Student", "Hours"}

// WriteAttendanceXLSX renders rows as one sheet and writes the workbook to w.
// A trailing row sums the credited hours.
func WriteAttendanceXLSX(w io.Writer, rows []lesson.ReportRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), AttendanceSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(attendanceHeaders))
	for i, h := range attendanceHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(AttendanceSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var total float64
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		school := r.SchoolName
		if school == "" {
			school = r.SchoolID
		}
		values := []interface{}{
			timeutil.FormatDate(r.LessonDate),
			school,
			string(r.Branch),
			string(r.LessonType),
			r.StudentName,
			r.HoursCredited,
		}
		if err := f.SetSheetRow(AttendanceSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
		total += r.HoursCredited
	}

	totalRow := len(rows) + 2
	if err := f.SetCellValue(AttendanceSheet, fmt.Sprintf("E%d", totalRow), "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(AttendanceSheet, fmt.Sprintf("F%d", totalRow), total); err != nil {
		return err
	}
	if err := f.SetColWidth(AttendanceSheet, "A", "E", 18); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
