package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Domain names one of the report payloads.
type Domain string

const (
	DomainAutoimmune     Domain = "autoimmune"
	DomainCardiology     Domain = "cardiology"
	DomainRFT            Domain = "rft"
	DomainLFT            Domain = "lft"
	DomainDiseaseHistory Domain = "disease_history"
	DomainImaging        Domain = "imaging"
	DomainHematology     Domain = "hematology"
)

// Domains lists every domain in display order.
var Domains = []Domain{
	DomainAutoimmune,
	DomainCardiology,
	DomainRFT,
	DomainLFT,
	DomainDiseaseHistory,
	DomainImaging,
	DomainHematology,
}

func ParseDomain(s string) (Domain, bool) {
	for _, d := range Domains {
		if string(d) == s {
			return d, true
		}
	}
	return "", false
}

// FieldValue is one recorded field. Measurements carry Value and Unit, text
// and enum fields carry Text, scores keep their Answers.
type FieldValue struct {
	Value   *float64  `json:"value,omitempty"`
	Unit    string    `json:"unit,omitempty"`
	Text    string    `json:"text,omitempty"`
	Answers []float64 `json:"answers,omitempty"`
	Derived bool      `json:"derived,omitempty"`
	Flag    string    `json:"flag,omitempty"`
}

// UnmarshalJSON also accepts a bare number or string.
func (v *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = FieldValue{}
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = FieldValue{Text: s}
		return nil
	case '{':
		type plain FieldValue
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*v = FieldValue(p)
		return nil
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("field value must be a number, string or object: %w", err)
		}
		*v = FieldValue{Value: &f}
		return nil
	}
}

// IsEmpty reports whether nothing was recorded.
func (v FieldValue) IsEmpty() bool {
	return v.Value == nil && v.Text == "" && len(v.Answers) == 0
}

// Float is a convenience for building values.
func Float(f float64) *float64 {
	return &f
}

// Panel holds the fields of one domain keyed by field name.
type Panel map[string]FieldValue

// Value stores the panel as JSONB. An empty panel is stored as NULL.
func (p Panel) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal panel: %w", err)
	}
	return b, nil
}

func (p *Panel) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("panel must be scanned from JSON")
	}
	return json.Unmarshal(b, p)
}

// TestReport is one dated report for a patient.
type TestReport struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	PatientID      uuid.UUID  `json:"patient_id" db:"patient_id"`
	ReportDate     Date       `json:"report_date" db:"report_date"`
	Title          string     `json:"title,omitempty" db:"title"`
	Autoimmune     Panel      `json:"autoimmune,omitempty" db:"autoimmune"`
	Cardiology     Panel      `json:"cardiology,omitempty" db:"cardiology"`
	RFT            Panel      `json:"rft,omitempty" db:"rft"`
	LFT            Panel      `json:"lft,omitempty" db:"lft"`
	DiseaseHistory Panel      `json:"disease_history,omitempty" db:"disease_history"`
	Imaging        Panel      `json:"imaging,omitempty" db:"imaging"`
	Hematology     Panel      `json:"hematology,omitempty" db:"hematology"`
	CreatedBy      uuid.UUID  `json:"created_by" db:"created_by"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"-" db:"deleted_at"`
}

// Panel returns the payload of domain d.
func (r *TestReport) Panel(d Domain) Panel {
	switch d {
	case DomainAutoimmune:
		return r.Autoimmune
	case DomainCardiology:
		return r.Cardiology
	case DomainRFT:
		return r.RFT
	case DomainLFT:
		return r.LFT
	case DomainDiseaseHistory:
		return r.DiseaseHistory
	case DomainImaging:
		return r.Imaging
	case DomainHematology:
		return r.Hematology
	}
	return nil
}

// SetPanel replaces the payload of domain d.
func (r *TestReport) SetPanel(d Domain, p Panel) {
	switch d {
	case DomainAutoimmune:
		r.Autoimmune = p
	case DomainCardiology:
		r.Cardiology = p
	case DomainRFT:
		r.RFT = p
	case DomainLFT:
		r.LFT = p
	case DomainDiseaseHistory:
		r.DiseaseHistory = p
	case DomainImaging:
		r.Imaging = p
	case DomainHematology:
		r.Hematology = p
	}
}

// HasPayload reports whether any domain has at least one field.
func (r *TestReport) HasPayload() bool {
	for _, d := range Domains {
		if len(r.Panel(d)) > 0 {
			return true
		}
	}
	return false
}

// ReportSummary is a search hit with the owning patient's identity.
type ReportSummary struct {
	TestReport
	ClinicNumber string `json:"clinic_number" db:"clinic_number"`
	PatientName  string `json:"patient_name" db:"patient_name"`
}

// FieldPoint is one value of a field in a patient's history.
type FieldPoint struct {
	ReportID   uuid.UUID  `json:"report_id" db:"report_id"`
	ReportDate Date       `json:"report_date" db:"report_date"`
	Value      FieldValue `json:"value" db:"value"`
}

// FieldValue columns come back as JSONB fragments.
func (v *FieldValue) Scan(src interface{}) error {
	switch b := src.(type) {
	case nil:
		*v = FieldValue{}
		return nil
	case []byte:
		return json.Unmarshal(b, v)
	case string:
		return json.Unmarshal([]byte(b), v)
	}
	return errors.New("field value must be scanned from JSON")
}

// ReportFilter represents report search parameters
type ReportFilter struct {
	Pagination
	Query     string     `form:"q" binding:"max=200"`
	Domain    string     `form:"domain"`
	From      string     `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To        string     `form:"to" binding:"omitempty,datetime=2006-01-02"`
	PatientID string     `form:"patient_id" binding:"omitempty,uuid"`
	FromDate  *Date      `form:"-"`
	ToDate    *Date      `form:"-"`
	Patient   *uuid.UUID `form:"-"`
}

// ReportPayload carries the date, title and domain payloads of a report write.
type ReportPayload struct {
	ReportDate     string `json:"report_date" binding:"required,datetime=2006-01-02,notfuture"`
	Title          string `json:"title" binding:"max=200"`
	Autoimmune     Panel  `json:"autoimmune"`
	Cardiology     Panel  `json:"cardiology"`
	RFT            Panel  `json:"rft"`
	LFT            Panel  `json:"lft"`
	DiseaseHistory Panel  `json:"disease_history"`
	Imaging        Panel  `json:"imaging"`
	Hematology     Panel  `json:"hematology"`
}

// Panels returns the non-empty payloads keyed by domain.
func (p ReportPayload) Panels() map[Domain]Panel {
	all := map[Domain]Panel{
		DomainAutoimmune:     p.Autoimmune,
		DomainCardiology:     p.Cardiology,
		DomainRFT:            p.RFT,
		DomainLFT:            p.LFT,
		DomainDiseaseHistory: p.DiseaseHistory,
		DomainImaging:        p.Imaging,
		DomainHematology:     p.Hematology,
	}
	for d, panel := range all {
		if len(panel) == 0 {
			delete(all, d)
		}
	}
	return all
}
