// Package progression models grade progression per (student, branch): the
// hours-to-grade requirement table, the exam eligibility classifier and the
// progress ledger record that accumulates training hours.
package progression

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wingtsun-academy/progression-engine/internal/domain/shared"
)

// Hours is the pair of thresholds that applies to one grade.
type Hours struct {
	Required float64 `json:"required"`
	Minimum  float64 `json:"minimum"`
}

// Unconstrained reports whether no threshold applies.
func (h Hours) Unconstrained() bool {
	return h.Required == 0
}

func (h Hours) validate() error {
	if h.Minimum < 0 {
		return shared.Validationf("progression", "ValidateHours", "minimum hours must not be negative")
	}
	if h.Required < h.Minimum {
		return shared.Validationf("progression", "ValidateHours",
			"required hours (%.2f) must be at least minimum hours (%.2f)", h.Required, h.Minimum)
	}
	return nil
}

// Band applies the same thresholds to every grade in [MinGrade, MaxGrade].
type Band struct {
	MinGrade int   `json:"min_grade"`
	MaxGrade int   `json:"max_grade"`
	Hours    Hours `json:"hours"`
}

// Contains reports whether grade falls inside the band.
func (b Band) Contains(grade int) bool {
	return b.MinGrade <= grade && grade <= b.MaxGrade
}

// DefaultBands is the school's standard grading table.
func DefaultBands() []Band {
	return []Band{
		{MinGrade: 1, MaxGrade: 3, Hours: Hours{Required: 54, Minimum: 44}},
		{MinGrade: 4, MaxGrade: 8, Hours: Hours{Required: 60, Minimum: 52}},
		{MinGrade: 9, MaxGrade: 10, Hours: Hours{Required: 96, Minimum: 80}},
		{MinGrade: 11, MaxGrade: 12, Hours: Hours{Required: 128, Minimum: 110}},
	}
}

// RequirementTable maps a grade to its hour thresholds through an ordered set
// of disjoint bands.
type RequirementTable struct {
	bands []Band
}

// NewRequirementTable validates and sorts bands. Bands must not overlap.
func NewRequirementTable(bands []Band) (*RequirementTable, error) {
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinGrade < sorted[j].MinGrade })

	for i, b := range sorted {
		if b.MinGrade < 1 || b.MaxGrade < b.MinGrade {
			return nil, shared.Validationf("progression", "NewRequirementTable",
				"band %d-%d is not a valid grade range", b.MinGrade, b.MaxGrade)
		}
		if err := b.Hours.validate(); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].MaxGrade >= b.MinGrade {
			return nil, shared.Validationf("progression", "NewRequirementTable",
				"band %d-%d overlaps band %d-%d", b.MinGrade, b.MaxGrade, sorted[i-1].MinGrade, sorted[i-1].MaxGrade)
		}
	}
	return &RequirementTable{bands: sorted}, nil
}

// DefaultRequirementTable returns the table built from DefaultBands.
func DefaultRequirementTable() *RequirementTable {
	t, err := NewRequirementTable(DefaultBands())
	if err != nil {
		panic(err)
	}
	return t
}

// HoursForGrade returns the thresholds of the band containing grade, or the
// zero value when no band matches.
func (t *RequirementTable) HoursForGrade(grade int) Hours {
	for _, b := range t.bands {
		if b.Contains(grade) {
			return b.Hours
		}
	}
	return Hours{}
}

// Bands returns a copy of the configured bands in grade order.
func (t *RequirementTable) Bands() []Band {
	out := make([]Band, len(t.bands))
	copy(out, t.bands)
	return out
}

// ParseBands parses "1-3:54:44,4-8:60:52" into bands (range:required:minimum).
func ParseBands(s string) ([]Band, error) {
	var bands []Band
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("band %q must look like MIN-MAX:REQUIRED:MINIMUM", part)
		}
		lo, hi, ok := strings.Cut(fields[0], "-")
		if !ok {
			hi = lo
		}
		minGrade, err1 := strconv.Atoi(lo)
		maxGrade, err2 := strconv.Atoi(hi)
		required, err3 := strconv.ParseFloat(fields[1], 64)
		minimum, err4 := strconv.ParseFloat(fields[2], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("band %q has non-numeric values", part)
		}
		bands = append(bands, Band{
			MinGrade: minGrade,
			MaxGrade: maxGrade,
			Hours:    Hours{Required: required, Minimum: minimum},
		})
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("no grade bands defined")
	}
	return bands, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADE REQUIREMENT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// GradeRequirement is an administrator-maintained catalog row naming a grade of
// a branch. When present it overrides the band thresholds for that grade.
type GradeRequirement struct {
	ID            string        `json:"id"`
	Branch        shared.Branch `json:"branch"`
	Grade         int           `json:"grade"`
	GradeName     string        `json:"grade_name"`
	RequiredHours float64       `json:"required_hours"`
	MinimumHours  float64       `json:"minimum_hours"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewGradeRequirement validates and builds a catalog row.
func NewGradeRequirement(branch shared.Branch, grade int, name string, required, minimum float64) (*GradeRequirement, error) {
	r := &GradeRequirement{
		ID:            shared.NewID(),
		Branch:        branch,
		Grade:         grade,
		GradeName:     strings.TrimSpace(name),
		RequiredHours: shared.RoundHours(required),
		MinimumHours:  shared.RoundHours(minimum),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	return r, nil
}

// Validate checks the catalog invariants.
func (r *GradeRequirement) Validate() error {
	if !r.Branch.IsValid() {
		return shared.Validationf("progression", "ValidateRequirement", "unknown branch %q", r.Branch)
	}
	if r.Grade < 1 {
		return shared.Validationf("progression", "ValidateRequirement", "grade must be at least 1")
	}
	if r.GradeName == "" {
		return shared.Validationf("progression", "ValidateRequirement", "grade name is required")
	}
	return r.Hours().validate()
}

// Hours returns the row's thresholds.
func (r *GradeRequirement) Hours() Hours {
	return Hours{Required: r.RequiredHours, Minimum: r.MinimumHours}
}

// Resolve picks the thresholds for grade: the catalog row when there is one,
// otherwise the band table.
func Resolve(table *RequirementTable, catalog *GradeRequirement, grade int) Hours {
	if catalog != nil && catalog.Grade == grade {
		return catalog.Hours()
	}
	return table.HoursForGrade(grade)
}
