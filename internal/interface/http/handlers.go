package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wingtsun-academy/progression-engine/internal/application/command"
	"github.com/wingtsun-academy/progression-engine/internal/application/query"
	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/infrastructure/report"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe.
func (s *Server) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"status": "healthy",
		"uptime": s.Uptime().Round(time.Second).String(),
	})
}

// handleReady runs the dependency checks.
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		c.JSON(http.StatusServiceUnavailable, JSONResponse{Success: false, Data: status})
		return
	}
	writeJSON(c, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListBands(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.deps.Catalog.Bands())
}

// handleHoursForGrade handles GET /api/v1/grades/hours/:grade?branch=
func (s *Server) handleHoursForGrade(c *gin.Context) {
	start := time.Now()
	grade, err := strconv.Atoi(c.Param("grade"))
	if err != nil {
		s.respond(c, "hours_for_grade", start, 0, nil,
			shared.NewDomainError("http", "HoursForGrade", shared.ErrInvalidFormat, "grade must be an integer"))
		return
	}
	res, err := s.deps.HoursForGrade.Handle(c.Request.Context(), query.HoursForGradeQuery{
		Branch: c.Query("branch"),
		Grade:  grade,
	})
	s.respond(c, "hours_for_grade", start, http.StatusOK, res, err)
}

// handleCheckEligibility handles GET /api/v1/grades/eligibility?grade=&completed_hours=&branch=
func (s *Server) handleCheckEligibility(c *gin.Context) {
	start := time.Now()
	grade, err := queryInt(c, "grade", 0)
	if err != nil {
		s.respond(c, "check_eligibility", start, 0, nil, err)
		return
	}
	completed, err := strconv.ParseFloat(c.Query("completed_hours"), 64)
	if err != nil {
		s.respond(c, "check_eligibility", start, 0, nil,
			shared.NewDomainError("http", "CheckEligibility", shared.ErrInvalidFormat, "completed_hours must be a number"))
		return
	}
	res, err := s.deps.CheckEligibility.Handle(c.Request.Context(), query.CheckEligibilityQuery{
		Branch:         c.Query("branch"),
		Grade:          grade,
		CompletedHours: completed,
	})
	s.respond(c, "check_eligibility", start, http.StatusOK, res, err)
}

func (s *Server) handleListRequirements(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Catalog.ListRequirements(c.Request.Context(), c.Query("branch"))
	s.respond(c, "list_requirements", start, http.StatusOK, res, err)
}

type requirementRequest struct {
	Branch        string  `json:"branch"`
	Grade         int     `json:"grade"`
	GradeName     string  `json:"grade_name"`
	RequiredHours float64 `json:"required_hours"`
	MinimumHours  float64 `json:"minimum_hours"`
}

// handleSaveRequirement serves both POST (create) and PUT /:id (update).
func (s *Server) handleSaveRequirement(c *gin.Context) {
	start := time.Now()
	var req requirementRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "save_requirement", start, 0, nil, err)
		return
	}
	id := c.Param("id")
	res, err := s.deps.SaveRequirement.Handle(c.Request.Context(), command.SaveRequirementCommand{
		Actor:         actorFrom(c),
		ID:            id,
		Branch:        req.Branch,
		Grade:         req.Grade,
		GradeName:     req.GradeName,
		RequiredHours: req.RequiredHours,
		MinimumHours:  req.MinimumHours,
	})
	status := http.StatusOK
	if id == "" {
		status = http.StatusCreated
	}
	s.respond(c, "save_requirement", start, status, res, err)
}

type changeGradeRequest struct {
	StudentID string `json:"student_id"`
	Branch    string `json:"branch"`
	NewGrade  int    `json:"new_grade"`
	Note      string `json:"note"`
}

func (s *Server) handleChangeGrade(c *gin.Context) {
	start := time.Now()
	var req changeGradeRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "change_grade", start, 0, nil, err)
		return
	}
	res, err := s.deps.ChangeGrade.Handle(c.Request.Context(), command.ChangeGradeCommand{
		Actor:     actorFrom(c),
		StudentID: req.StudentID,
		Branch:    req.Branch,
		NewGrade:  req.NewGrade,
		Note:      req.Note,
	})
	s.respond(c, "change_grade", start, http.StatusOK, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleStudentProgress(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.StudentProgress.Handle(c.Request.Context(), query.GetStudentProgressQuery{
		Actor:     actorFrom(c),
		StudentID: c.Param("id"),
	})
	s.respond(c, "student_progress", start, http.StatusOK, res, err)
}

func (s *Server) handleDecideStudent(approve bool) gin.HandlerFunc {
	op := "reject_student"
	if approve {
		op = "approve_student"
	}
	return func(c *gin.Context) {
		start := time.Now()
		res, err := s.deps.DecideStudent.Handle(c.Request.Context(), command.DecideStudentCommand{
			Actor:     actorFrom(c),
			StudentID: c.Param("id"),
			Approve:   approve,
		})
		s.respond(c, op, start, http.StatusOK, res, err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS & ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func lessonFilter(c *gin.Context) (query.LessonFilterQuery, error) {
	limit, err := queryInt(c, "limit", 0)
	return query.LessonFilterQuery{
		Actor:    actorFrom(c),
		SchoolID: c.Query("school_id"),
		Branch:   c.Query("branch"),
		From:     c.Query("from"),
		To:       c.Query("to"),
		Limit:    limit,
	}, err
}

func (s *Server) handleListLessons(c *gin.Context) {
	start := time.Now()
	q, err := lessonFilter(c)
	if err != nil {
		s.respond(c, "list_lessons", start, 0, nil, err)
		return
	}
	res, err := s.deps.Lessons.ListLessons(c.Request.Context(), q)
	s.respond(c, "list_lessons", start, http.StatusOK, res, err)
}

type createLessonRequest struct {
	SchoolID   string `json:"school_id"`
	Branch     string `json:"branch"`
	LessonType string `json:"lesson_type"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	Notes      string `json:"notes"`
}

func (s *Server) handleCreateLesson(c *gin.Context) {
	start := time.Now()
	var req createLessonRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "create_lesson", start, 0, nil, err)
		return
	}
	res, err := s.deps.CreateLesson.Handle(c.Request.Context(), command.CreateLessonCommand{
		Actor:      actorFrom(c),
		SchoolID:   req.SchoolID,
		Branch:     req.Branch,
		LessonType: req.LessonType,
		Date:       req.Date,
		StartTime:  req.StartTime,
		Notes:      req.Notes,
	})
	s.respond(c, "create_lesson", start, http.StatusCreated, res, err)
}

func (s *Server) handleGetLesson(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Lessons.GetLesson(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respond(c, "get_lesson", start, http.StatusOK, res, err)
}

func (s *Server) handleDeleteLesson(c *gin.Context) {
	start := time.Now()
	err := s.deps.DeleteLesson.Handle(c.Request.Context(), command.DeleteLessonCommand{
		Actor:    actorFrom(c),
		LessonID: c.Param("id"),
	})
	s.respond(c, "delete_lesson", start, http.StatusOK, gin.H{"deleted": c.Param("id")}, err)
}

func (s *Server) handleListAttendance(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Lessons.ListLessonAttendance(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respond(c, "list_attendance", start, http.StatusOK, res, err)
}

type creditAttendanceRequest struct {
	StudentIDs []string `json:"student_ids"`
}

// handleCreditAttendance handles the bulk roster form.
func (s *Server) handleCreditAttendance(c *gin.Context) {
	start := time.Now()
	var req creditAttendanceRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "credit_attendance", start, 0, nil, err)
		return
	}
	res, err := s.deps.CreditAttendance.Handle(c.Request.Context(), command.CreditAttendanceCommand{
		Actor:      actorFrom(c),
		LessonID:   c.Param("id"),
		StudentIDs: req.StudentIDs,
	})
	s.respond(c, "credit_attendance", start, http.StatusOK, res, err)
}

func (s *Server) handleRecordAttendance(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.RecordAttendance.Handle(c.Request.Context(), command.RecordAttendanceCommand{
		Actor:     actorFrom(c),
		LessonID:  c.Param("id"),
		StudentID: c.Param("student_id"),
	})
	s.respond(c, "record_attendance", start, http.StatusCreated, res, err)
}

func (s *Server) handleRevertAttendance(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.RevertAttendance.Handle(c.Request.Context(), command.RevertAttendanceCommand{
		Actor:        actorFrom(c),
		AttendanceID: c.Param("id"),
	})
	s.respond(c, "revert_attendance", start, http.StatusOK, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListSchedules(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Lessons.ListSchedules(c.Request.Context(), actorFrom(c), c.Query("school_id"), queryBool(c, "active", false))
	s.respond(c, "list_schedules", start, http.StatusOK, res, err)
}

type createScheduleRequest struct {
	SchoolID   string `json:"school_id"`
	Branch     string `json:"branch"`
	LessonType string `json:"lesson_type"`
	DayOfWeek  int    `json:"day_of_week"`
	StartTime  string `json:"start_time"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

func (s *Server) handleCreateSchedule(c *gin.Context) {
	start := time.Now()
	var req createScheduleRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "create_schedule", start, 0, nil, err)
		return
	}
	res, err := s.deps.CreateSchedule.Handle(c.Request.Context(), command.CreateScheduleCommand{
		Actor:      actorFrom(c),
		SchoolID:   req.SchoolID,
		Branch:     req.Branch,
		LessonType: req.LessonType,
		DayOfWeek:  req.DayOfWeek,
		StartTime:  req.StartTime,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	})
	s.respond(c, "create_schedule", start, http.StatusCreated, res, err)
}

type extendScheduleRequest struct {
	NewEndDate string `json:"new_end_date"`
}

// handleExtendSchedule accepts an empty body to refill up to the current end date.
func (s *Server) handleExtendSchedule(c *gin.Context) {
	start := time.Now()
	var req extendScheduleRequest
	if c.Request.ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			s.respond(c, "extend_schedule", start, 0, nil, err)
			return
		}
	}
	res, err := s.deps.ExtendSchedule.Handle(c.Request.Context(), command.ExtendScheduleCommand{
		Actor:      actorFrom(c),
		ScheduleID: c.Param("id"),
		NewEndDate: req.NewEndDate,
	})
	s.respond(c, "extend_schedule", start, http.StatusOK, res, err)
}

func (s *Server) handleDeactivateSchedule(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.DeactivateSchedule.Handle(c.Request.Context(), command.DeactivateScheduleCommand{
		Actor:      actorFrom(c),
		ScheduleID: c.Param("id"),
	})
	s.respond(c, "deactivate_schedule", start, http.StatusOK, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS & SEMINARS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListEvents(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Catalog.ListEvents(c.Request.Context(), queryBool(c, "include_completed", false))
	s.respond(c, "list_events", start, http.StatusOK, res, err)
}

type createEventRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Scope       string   `json:"scope"`
	SchoolIDs   []string `json:"school_ids"`
	EventDate   string   `json:"event_date"`
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	start := time.Now()
	var req createEventRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "create_event", start, 0, nil, err)
		return
	}
	res, err := s.deps.CreateEvent.Handle(c.Request.Context(), command.CreateEventCommand{
		Actor:       actorFrom(c),
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Scope:       req.Scope,
		SchoolIDs:   req.SchoolIDs,
		EventDate:   req.EventDate,
	})
	s.respond(c, "create_event", start, http.StatusCreated, res, err)
}

func (s *Server) handleListRegistrations(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Catalog.ListRegistrations(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respond(c, "list_registrations", start, http.StatusOK, res, err)
}

type registerRequest struct {
	StudentID       string `json:"student_id"`
	RegisterWT      bool   `json:"register_wt"`
	RegisterEscrima bool   `json:"register_escrima"`
	WillTakeExam    bool   `json:"will_take_exam"`
	ExamWT          bool   `json:"exam_wt"`
	ExamEscrima     bool   `json:"exam_escrima"`
}

func (s *Server) handleRegister(c *gin.Context) {
	start := time.Now()
	var req registerRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "register_for_event", start, 0, nil, err)
		return
	}
	res, err := s.deps.RegisterForEvent.Handle(c.Request.Context(), command.RegisterForEventCommand{
		Actor:           actorFrom(c),
		EventID:         c.Param("id"),
		StudentID:       req.StudentID,
		RegisterWT:      req.RegisterWT,
		RegisterEscrima: req.RegisterEscrima,
		WillTakeExam:    req.WillTakeExam,
		ExamWT:          req.ExamWT,
		ExamEscrima:     req.ExamEscrima,
	})
	s.respond(c, "register_for_event", start, http.StatusCreated, res, err)
}

func (s *Server) handleListEvaluations(c *gin.Context) {
	start := time.Now()
	res, err := s.deps.Catalog.ListEvaluations(c.Request.Context(), actorFrom(c), c.Param("id"))
	s.respond(c, "list_evaluations", start, http.StatusOK, res, err)
}

type evaluateRequest struct {
	PassingStudentIDs []string `json:"passing_student_ids"`
}

func (s *Server) handleEvaluateSeminar(c *gin.Context) {
	start := time.Now()
	var req evaluateRequest
	if err := bind(c, &req); err != nil {
		s.respond(c, "evaluate_seminar", start, 0, nil, err)
		return
	}
	res, err := s.deps.EvaluateSeminar.Handle(c.Request.Context(), command.EvaluateSeminarCommand{
		Actor:             actorFrom(c),
		EventID:           c.Param("id"),
		PassingStudentIDs: req.PassingStudentIDs,
	})
	s.respond(c, "evaluate_seminar", start, http.StatusOK, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATION
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleListAudit(c *gin.Context) {
	start := time.Now()
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		s.respond(c, "list_audit", start, 0, nil, err)
		return
	}
	res, err := s.deps.Catalog.ListAudit(c.Request.Context(), actorFrom(c), audit.Filter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Action:     audit.Action(c.Query("action")),
		Limit:      limit,
	})
	s.respond(c, "list_audit", start, http.StatusOK, res, err)
}

func (s *Server) handleAttendanceReport(c *gin.Context) {
	start := time.Now()
	q, err := lessonFilter(c)
	if err != nil {
		s.respond(c, "attendance_report", start, 0, nil, err)
		return
	}
	res, err := s.deps.Lessons.AttendanceReport(c.Request.Context(), q)
	s.respond(c, "attendance_report", start, http.StatusOK, res, err)
}

// handleAttendanceXLSX renders the same rows as a workbook download.
func (s *Server) handleAttendanceXLSX(c *gin.Context) {
	start := time.Now()
	q, err := lessonFilter(c)
	if err != nil {
		s.respond(c, "attendance_export", start, 0, nil, err)
		return
	}
	rows, err := s.deps.Lessons.AttendanceReport(c.Request.Context(), q)
	if err != nil {
		s.respond(c, "attendance_export", start, 0, nil, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteAttendanceXLSX(&buf, rows); err != nil {
		s.respond(c, "attendance_export", start, 0, nil, err)
		return
	}
	s.observe("attendance_export", start, nil)

	fileName := fmt.Sprintf("attendance_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(http.StatusOK, report.ContentType, buf.Bytes())
}
