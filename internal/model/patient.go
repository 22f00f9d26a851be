package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	SexMale   = "male"
	SexFemale = "female"
	SexOther  = "other"
)

// Patient is a person with a clinic-assigned identifier.
type Patient struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ClinicNumber     string     `json:"clinic_number" db:"clinic_number"`
	Name             string     `json:"name" db:"name"`
	DateOfBirth      *Date      `json:"date_of_birth,omitempty" db:"date_of_birth"`
	Sex              string     `json:"sex,omitempty" db:"sex"`
	Phone            string     `json:"phone,omitempty" db:"phone"`
	Address          string     `json:"address,omitempty" db:"address"`
	Occupation       string     `json:"occupation,omitempty" db:"occupation"`
	ReferredBy       string     `json:"referred_by,omitempty" db:"referred_by"`
	PrimaryDiagnosis string     `json:"primary_diagnosis,omitempty" db:"primary_diagnosis"`
	History          string     `json:"history,omitempty" db:"history"`
	Notes            string     `json:"notes,omitempty" db:"notes"`
	CreatedBy        uuid.UUID  `json:"created_by" db:"created_by"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt        *time.Time `json:"-" db:"deleted_at"`
}

// AgeAt returns whole years of age at the given date, or nil without a date of birth.
func (p *Patient) AgeAt(at time.Time) *int {
	if p.DateOfBirth == nil {
		return nil
	}
	dob := p.DateOfBirth.Time

	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	return &years
}

// PatientDetail adds report statistics to a patient.
type PatientDetail struct {
	Patient
	ReportCount    int   `json:"report_count" db:"report_count"`
	LastReportDate *Date `json:"last_report_date,omitempty" db:"last_report_date"`
}

// NormalizeClinicNumber trims and upper-cases a clinic identifier.
func NormalizeClinicNumber(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Patient list sort keys
const (
	PatientSortCreatedAt    = "created_at"
	PatientSortName         = "name"
	PatientSortClinicNumber = "clinic_number"
)

// PatientFilter represents patient search parameters
type PatientFilter struct {
	Pagination
	Query string `form:"q" binding:"max=200"`
	Sex   string `form:"sex" binding:"omitempty,sex"`
	// Sort is a key optionally prefixed with "-" for descending order.
	Sort string `form:"sort" binding:"omitempty,oneof=name -name created_at -created_at clinic_number -clinic_number"`
}

// SortColumn splits Sort into a column and direction, defaulting to newest first.
func (f PatientFilter) SortColumn() (column string, desc bool) {
	if f.Sort == "" {
		return PatientSortCreatedAt, true
	}
	if strings.HasPrefix(f.Sort, "-") {
		return strings.TrimPrefix(f.Sort, "-"), true
	}
	return f.Sort, false
}

type CreatePatientRequest struct {
	ClinicNumber     string `json:"clinic_number" binding:"required,clinicnumber"`
	Name             string `json:"name" binding:"required,max=200"`
	DateOfBirth      string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02,notfuture"`
	Sex              string `json:"sex" binding:"omitempty,sex"`
	Phone            string `json:"phone" binding:"max=50"`
	Address          string `json:"address" binding:"max=500"`
	Occupation       string `json:"occupation" binding:"max=200"`
	ReferredBy       string `json:"referred_by" binding:"max=200"`
	PrimaryDiagnosis string `json:"primary_diagnosis" binding:"max=500"`
	History          string `json:"history" binding:"max=20000"`
	Notes            string `json:"notes" binding:"max=20000"`
}

// UpdatePatientRequest changes only the fields that are present.
type UpdatePatientRequest struct {
	ClinicNumber     *string `json:"clinic_number" binding:"omitempty,clinicnumber"`
	Name             *string `json:"name" binding:"omitempty,min=1,max=200"`
	DateOfBirth      *string `json:"date_of_birth" binding:"omitempty,datetime=2006-01-02,notfuture"`
	Sex              *string `json:"sex" binding:"omitempty,sex"`
	Phone            *string `json:"phone" binding:"omitempty,max=50"`
	Address          *string `json:"address" binding:"omitempty,max=500"`
	Occupation       *string `json:"occupation" binding:"omitempty,max=200"`
	ReferredBy       *string `json:"referred_by" binding:"omitempty,max=200"`
	PrimaryDiagnosis *string `json:"primary_diagnosis" binding:"omitempty,max=500"`
	History          *string `json:"history" binding:"omitempty,max=20000"`
	Notes            *string `json:"notes" binding:"omitempty,max=20000"`
}
