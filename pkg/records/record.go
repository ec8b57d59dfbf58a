// Package records holds the in-memory application state for the clinic
// data-entry app: the medical record list, the bonus ledger, and the UI
// preferences (theme, active filter). State lives for the process lifetime
// only; nothing is persisted.
package records

import (
	"strings"
	"time"
)

// Status is the upload state of a medical record.
type Status string

const (
	// StatusPending marks a record entered locally but not yet uploaded.
	StatusPending Status = "pending"
	// StatusUploaded marks a record that has been submitted in a batch upload.
	StatusUploaded Status = "uploaded"
)

// Department is the clinic department a record belongs to.
type Department string

// Departments recognized by the entry form. Free-text departments are
// accepted too; these are the ones offered in the UI and tool schema.
const (
	DeptGeneralMedicine Department = "General Medicine"
	DeptCardiology      Department = "Cardiology"
	DeptOrthopedics     Department = "Orthopedics"
	DeptPediatrics      Department = "Pediatrics"
	DeptRadiology       Department = "Radiology"
)

// DefaultDepartment is used when a record is created without one.
const DefaultDepartment = DeptGeneralMedicine

// DefaultPatientName is used when a record is created without a name.
const DefaultPatientName = "New Patient"

// Departments lists the known departments in UI order.
func Departments() []Department {
	return []Department{
		DeptGeneralMedicine,
		DeptCardiology,
		DeptOrthopedics,
		DeptPediatrics,
		DeptRadiology,
	}
}

// ParseDepartment matches s against the known departments, ignoring case.
// Unknown values are returned as-is with ok=false so callers can decide
// whether to keep or replace them.
func ParseDepartment(s string) (Department, bool) {
	for _, d := range Departments() {
		if strings.EqualFold(s, string(d)) {
			return d, true
		}
	}
	return Department(s), false
}

// Theme is the UI color theme.
type Theme string

const (
	ThemeLight    Theme = "light"
	ThemeDark     Theme = "dark"
	ThemeClinical Theme = "clinical"
)

// ParseTheme matches s against the known themes, ignoring case.
func ParseTheme(s string) (Theme, bool) {
	switch strings.ToLower(s) {
	case string(ThemeLight):
		return ThemeLight, true
	case string(ThemeDark):
		return ThemeDark, true
	case string(ThemeClinical):
		return ThemeClinical, true
	}
	return Theme(s), false
}

// MedicalRecord is one data-entry row. BonusEarned stays zero until the
// record is included in an upload batch, at which point it is stamped with
// the bonus rate in effect for that batch.
type MedicalRecord struct {
	ID           string     `json:"id"`
	PatientName  string     `json:"patientName"`
	PatientAge   int        `json:"patientAge"`
	Department   Department `json:"department"`
	Observations string     `json:"observations"`
	CreatedAt    time.Time  `json:"createdAt"`
	Status       Status     `json:"status"`
	BonusEarned  float64    `json:"bonusEarned"`
}

// Input carries the caller-supplied fields for a new record. Empty fields
// receive defaults; nothing here causes a record to be rejected.
type Input struct {
	PatientName  string `json:"patientName"`
	PatientAge   int    `json:"patientAge"`
	Department   string `json:"department"`
	Observations string `json:"observations"`
}

// Filter narrows the record list shown in the UI. Nil fields match
// everything; set fields must all match (AND semantics).
type Filter struct {
	Status     *Status     `json:"status,omitempty"`
	Department *Department `json:"department,omitempty"`
}

// Matches reports whether r satisfies every set constraint.
func (f Filter) Matches(r MedicalRecord) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.Department != nil && r.Department != *f.Department {
		return false
	}
	return true
}

// IsZero reports whether the filter has no constraints.
func (f Filter) IsZero() bool {
	return f.Status == nil && f.Department == nil
}
