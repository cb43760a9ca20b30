package memory

import (
	"context"
	"sort"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/audit"
	"github.com/wingtsun-academy/progression-engine/internal/domain/lesson"
	"github.com/wingtsun-academy/progression-engine/internal/domain/progression"
	"github.com/wingtsun-academy/progression-engine/internal/domain/seminar"
	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
	"github.com/wingtsun-academy/progression-engine/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

type progressRepo struct{ st *state }

func progressKey(studentID string, branch shared.Branch) string {
	return studentID + "|" + string(branch)
}

func (r *progressRepo) Create(_ context.Context, p *progression.StudentProgress) error {
	key := progressKey(p.StudentID, p.Branch)
	if _, ok := r.st.progress[key]; ok {
		return shared.NewDomainError("memory", "CreateProgress", shared.ErrAlreadyExists,
			"progress already exists")
	}
	r.st.progress[key] = *p
	return nil
}

func (r *progressRepo) Get(_ context.Context, studentID string, branch shared.Branch) (*progression.StudentProgress, error) {
	p, ok := r.st.progress[progressKey(studentID, branch)]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetProgress", "no %s progress for student %s", branch, studentID)
	}
	return &p, nil
}

func (r *progressRepo) ListByStudent(_ context.Context, studentID string) ([]*progression.StudentProgress, error) {
	var out []*progression.StudentProgress
	for _, p := range r.st.progress {
		if p.StudentID == studentID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Branch < out[j].Branch })
	return out, nil
}

func (r *progressRepo) mutate(studentID string, branch shared.Branch, fn func(p *progression.StudentProgress) error) (*progression.StudentProgress, error) {
	key := progressKey(studentID, branch)
	p, ok := r.st.progress[key]
	if !ok {
		return nil, shared.NotFoundf("memory", "UpdateProgress", "no %s progress for student %s", branch, studentID)
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	r.st.progress[key] = p
	return &p, nil
}

func (r *progressRepo) AddHours(_ context.Context, studentID string, branch shared.Branch, hours float64) (*progression.StudentProgress, error) {
	return r.mutate(studentID, branch, func(p *progression.StudentProgress) error {
		p.Credit(hours)
		return nil
	})
}

func (r *progressRepo) SubtractHours(_ context.Context, studentID string, branch shared.Branch, hours float64) (*progression.StudentProgress, error) {
	return r.mutate(studentID, branch, func(p *progression.StudentProgress) error {
		p.Revert(hours)
		return nil
	})
}

func (r *progressRepo) IncrementGrade(_ context.Context, studentID string, branch shared.Branch) (*progression.StudentProgress, error) {
	return r.mutate(studentID, branch, func(p *progression.StudentProgress) error {
		p.Promote()
		return nil
	})
}

func (r *progressRepo) SetGrade(_ context.Context, studentID string, branch shared.Branch, grade int) (int, error) {
	var old int
	_, err := r.mutate(studentID, branch, func(p *progression.StudentProgress) error {
		var err error
		old, err = p.SetGrade(grade)
		return err
	})
	return old, err
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUIREMENTS
// ══════════════════════════════════════════════════════════════════════════════

type requirementRepo struct{ st *state }

func (r *requirementRepo) Create(_ context.Context, req *progression.GradeRequirement) error {
	for _, existing := range r.st.requirements {
		if existing.Branch == req.Branch && existing.Grade == req.Grade {
			return shared.NewDomainError("memory", "CreateRequirement", shared.ErrAlreadyExists,
				"requirement already exists for branch and grade")
		}
	}
	r.st.requirements[req.ID] = *req
	return nil
}

func (r *requirementRepo) Get(_ context.Context, id string) (*progression.GradeRequirement, error) {
	req, ok := r.st.requirements[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetRequirement", "grade requirement %s not found", id)
	}
	return &req, nil
}

func (r *requirementRepo) Update(_ context.Context, req *progression.GradeRequirement) error {
	if _, ok := r.st.requirements[req.ID]; !ok {
		return shared.NotFoundf("memory", "UpdateRequirement", "grade requirement %s not found", req.ID)
	}
	for id, existing := range r.st.requirements {
		if id != req.ID && existing.Branch == req.Branch && existing.Grade == req.Grade {
			return shared.NewDomainError("memory", "UpdateRequirement", shared.ErrAlreadyExists,
				"requirement already exists for branch and grade")
		}
	}
	r.st.requirements[req.ID] = *req
	return nil
}

func (r *requirementRepo) Find(_ context.Context, branch shared.Branch, grade int) (*progression.GradeRequirement, error) {
	for _, req := range r.st.requirements {
		if req.Branch == branch && req.Grade == grade {
			req := req
			return &req, nil
		}
	}
	return nil, nil
}

func (r *requirementRepo) List(_ context.Context, branch shared.Branch) ([]*progression.GradeRequirement, error) {
	var out []*progression.GradeRequirement
	for _, req := range r.st.requirements {
		if branch == "" || req.Branch == branch {
			req := req
			out = append(out, &req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].Grade < out[j].Grade
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LESSONS
// ══════════════════════════════════════════════════════════════════════════════

type lessonRepo struct{ st *state }

func (r *lessonRepo) Create(_ context.Context, l *lesson.Lesson) error {
	r.st.lessons[l.ID] = *l
	return nil
}

func (r *lessonRepo) CreateForSchedule(_ context.Context, l *lesson.Lesson) (bool, error) {
	if l.ScheduleID != nil {
		for _, existing := range r.st.lessons {
			if existing.BelongsTo(*l.ScheduleID) && existing.DayKey() == l.DayKey() {
				return false, nil
			}
		}
	}
	r.st.lessons[l.ID] = *l
	return true, nil
}

func (r *lessonRepo) Get(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := r.st.lessons[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetLesson", "lesson %s not found", id)
	}
	return &l, nil
}

func sortLessons(out []*lesson.Lesson) {
	sort.Slice(out, func(i, j int) bool { return out[i].LessonDate.Before(out[j].LessonDate) })
}

func (r *lessonRepo) List(_ context.Context, f lesson.Filter) ([]*lesson.Lesson, error) {
	var out []*lesson.Lesson
	for _, l := range r.st.lessons {
		l := l
		if f.Matches(&l) {
			out = append(out, &l)
		}
	}
	sortLessons(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *lessonRepo) ListBySchedule(_ context.Context, scheduleID string) ([]*lesson.Lesson, error) {
	var out []*lesson.Lesson
	for _, l := range r.st.lessons {
		if l.BelongsTo(scheduleID) {
			l := l
			out = append(out, &l)
		}
	}
	sortLessons(out)
	return out, nil
}

func (r *lessonRepo) attendanceCount(lessonID string) int {
	n := 0
	for _, a := range r.st.attendance {
		if a.LessonID == lessonID {
			n++
		}
	}
	return n
}

func (r *lessonRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.st.lessons[id]; !ok {
		return shared.NotFoundf("memory", "DeleteLesson", "lesson %s not found", id)
	}
	if r.attendanceCount(id) > 0 {
		return shared.NewDomainError("memory", "DeleteLesson", shared.ErrInvalidState,
			"lesson has attendance records")
	}
	delete(r.st.lessons, id)
	return nil
}

func (r *lessonRepo) DeleteFutureUnattended(_ context.Context, scheduleID string, now time.Time) (int, error) {
	removed := 0
	for id, l := range r.st.lessons {
		l := l
		if l.BelongsTo(scheduleID) && l.InFuture(now) && r.attendanceCount(id) == 0 {
			delete(r.st.lessons, id)
			removed++
		}
	}
	return removed, nil
}

func (r *lessonRepo) CountAttendance(_ context.Context, lessonID string) (int, error) {
	return r.attendanceCount(lessonID), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

type scheduleRepo struct{ st *state }

func (r *scheduleRepo) Create(_ context.Context, s *lesson.LessonSchedule) error {
	r.st.schedules[s.ID] = *s
	return nil
}

func (r *scheduleRepo) Get(_ context.Context, id string) (*lesson.LessonSchedule, error) {
	s, ok := r.st.schedules[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetSchedule", "schedule %s not found", id)
	}
	return &s, nil
}

// GetForUpdate needs no lock; the store already serializes units of work.
func (r *scheduleRepo) GetForUpdate(ctx context.Context, id string) (*lesson.LessonSchedule, error) {
	return r.Get(ctx, id)
}

func (r *scheduleRepo) Update(_ context.Context, s *lesson.LessonSchedule) error {
	if _, ok := r.st.schedules[s.ID]; !ok {
		return shared.NotFoundf("memory", "UpdateSchedule", "schedule %s not found", s.ID)
	}
	r.st.schedules[s.ID] = *s
	return nil
}

func (r *scheduleRepo) List(_ context.Context, schoolID string, activeOnly bool) ([]*lesson.LessonSchedule, error) {
	var out []*lesson.LessonSchedule
	for _, s := range r.st.schedules {
		if schoolID != "" && s.SchoolID != schoolID {
			continue
		}
		if activeOnly && !s.IsActive {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime.String() < out[j].StartTime.String()
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

type attendanceRepo struct{ st *state }

func (r *attendanceRepo) Create(_ context.Context, a *lesson.Attendance) (bool, error) {
	if _, ok := r.st.lessons[a.LessonID]; !ok {
		return false, shared.NotFoundf("memory", "CreateAttendance", "lesson %s not found", a.LessonID)
	}
	for _, existing := range r.st.attendance {
		if existing.LessonID == a.LessonID && existing.StudentID == a.StudentID {
			return false, nil
		}
	}
	r.st.attendance[a.ID] = *a
	return true, nil
}

func (r *attendanceRepo) Get(_ context.Context, id string) (*lesson.Attendance, error) {
	a, ok := r.st.attendance[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetAttendance", "attendance %s not found", id)
	}
	return &a, nil
}

func (r *attendanceRepo) Delete(_ context.Context, id string) (*lesson.Attendance, error) {
	a, ok := r.st.attendance[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "DeleteAttendance", "attendance %s not found", id)
	}
	delete(r.st.attendance, id)
	return &a, nil
}

func (r *attendanceRepo) ListByLesson(_ context.Context, lessonID string) ([]*lesson.Attendance, error) {
	var out []*lesson.Attendance
	for _, a := range r.st.attendance {
		if a.LessonID == lessonID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *attendanceRepo) Report(_ context.Context, f lesson.Filter) ([]lesson.ReportRow, error) {
	var rows []lesson.ReportRow
	for _, a := range r.st.attendance {
		l, ok := r.st.lessons[a.LessonID]
		if !ok || !f.Matches(&l) {
			continue
		}
		row := lesson.ReportRow{
			LessonDate:    l.LessonDate,
			SchoolID:      l.SchoolID,
			SchoolName:    r.st.schools[l.SchoolID],
			Branch:        l.Branch,
			LessonType:    l.LessonType,
			StudentID:     a.StudentID,
			HoursCredited: a.HoursCredited,
		}
		for _, s := range r.st.students {
			if s.ID == a.StudentID {
				row.StudentName = s.FullName
				break
			}
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].LessonDate.Equal(rows[j].LessonDate) {
			return rows[i].LessonDate.Before(rows[j].LessonDate)
		}
		return rows[i].StudentName < rows[j].StudentName
	})
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

type studentRepo struct{ st *state }

func (r *studentRepo) Create(_ context.Context, s *student.Student) error {
	if _, ok := r.st.students[s.ID]; ok {
		return shared.NewDomainError("memory", "CreateStudent", shared.ErrAlreadyExists, "student already exists")
	}
	r.st.students[s.ID] = *s
	return nil
}

func (r *studentRepo) Get(_ context.Context, id string) (*student.Student, error) {
	s, ok := r.st.students[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetStudent", "student %s not found", id)
	}
	return &s, nil
}

func (r *studentRepo) GetForUpdate(ctx context.Context, id string) (*student.Student, error) {
	return r.Get(ctx, id)
}

func (r *studentRepo) UpdateStatus(_ context.Context, s *student.Student) error {
	existing, ok := r.st.students[s.ID]
	if !ok {
		return shared.NotFoundf("memory", "UpdateStudent", "student %s not found", s.ID)
	}
	existing.Status = s.Status
	existing.UpdatedAt = s.UpdatedAt
	r.st.students[s.ID] = existing
	return nil
}

func (r *studentRepo) ManagesSchool(_ context.Context, userID, schoolID string) (bool, error) {
	return r.st.managers[userID][schoolID], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SEMINARS
// ══════════════════════════════════════════════════════════════════════════════

type seminarRepo struct{ st *state }

func (r *seminarRepo) Create(_ context.Context, e *seminar.Event) error {
	cp := *e
	cp.SchoolIDs = append([]string(nil), e.SchoolIDs...)
	r.st.events[e.ID] = cp
	return nil
}

func (r *seminarRepo) Get(_ context.Context, id string) (*seminar.Event, error) {
	e, ok := r.st.events[id]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetEvent", "event %s not found", id)
	}
	e.SchoolIDs = append([]string(nil), e.SchoolIDs...)
	return &e, nil
}

func (r *seminarRepo) GetForUpdate(ctx context.Context, id string) (*seminar.Event, error) {
	return r.Get(ctx, id)
}

func (r *seminarRepo) MarkCompleted(_ context.Context, e *seminar.Event) error {
	existing, ok := r.st.events[e.ID]
	if !ok {
		return shared.NotFoundf("memory", "MarkCompleted", "event %s not found", e.ID)
	}
	existing.IsCompleted = true
	existing.CompletedAt = e.CompletedAt
	r.st.events[e.ID] = existing
	return nil
}

func (r *seminarRepo) List(_ context.Context, includeCompleted bool) ([]*seminar.Event, error) {
	var out []*seminar.Event
	for _, e := range r.st.events {
		if e.IsCompleted && !includeCompleted {
			continue
		}
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.Before(out[j].EventDate) })
	return out, nil
}

func registrationKey(eventID, studentID string) string {
	return eventID + "|" + studentID
}

func (r *seminarRepo) CreateRegistration(_ context.Context, reg *seminar.Registration) error {
	key := registrationKey(reg.EventID, reg.StudentID)
	if _, ok := r.st.registrations[key]; ok {
		return shared.NewDomainError("memory", "CreateRegistration", shared.ErrAlreadyExists,
			"student is already registered for this event")
	}
	r.st.registrations[key] = *reg
	return nil
}

func (r *seminarRepo) GetRegistration(_ context.Context, eventID, studentID string) (*seminar.Registration, error) {
	reg, ok := r.st.registrations[registrationKey(eventID, studentID)]
	if !ok {
		return nil, shared.NotFoundf("memory", "GetRegistration", "student %s is not registered", studentID)
	}
	return &reg, nil
}

func (r *seminarRepo) ListRegistrations(_ context.Context, eventID string) ([]*seminar.Registration, error) {
	var out []*seminar.Registration
	for _, reg := range r.st.registrations {
		if reg.EventID == eventID {
			reg := reg
			out = append(out, &reg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *seminarRepo) CreateEvaluation(_ context.Context, e *seminar.Evaluation) error {
	r.st.evaluations[e.ID] = *e
	return nil
}

func (r *seminarRepo) ListEvaluations(_ context.Context, eventID string) ([]*seminar.Evaluation, error) {
	var out []*seminar.Evaluation
	for _, e := range r.st.evaluations {
		if e.EventID == eventID {
			e := e
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].Branch < out[j].Branch
	})
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIT
// ══════════════════════════════════════════════════════════════════════════════

type auditRepo struct{ st *state }

func (r *auditRepo) Append(_ context.Context, e *audit.Entry) error {
	r.st.audit = append(r.st.audit, *e)
	return nil
}

func (r *auditRepo) List(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for i := len(r.st.audit) - 1; i >= 0; i-- {
		e := r.st.audit[i]
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		if f.EntityID != "" && e.EntityID != f.EntityID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, &e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
