package labs

import (
	"github.com/jwalitptl/patient-records/internal/model"
)

// Reference flags
const (
	FlagLow    = "low"
	FlagNormal = "normal"
	FlagHigh   = "high"
)

const sexAny = ""

// ReferenceRange bounds the normal values of a field in its canonical unit.
// A nil bound is open.
type ReferenceRange struct {
	Key string
	Sex string
	Min *float64
	Max *float64
}

// referenceRanges holds adult ranges. Sex-specific rows take precedence
// over the unisex row of the same key.
var referenceRanges = []ReferenceRange{
	// Autoimmune
	{Key: "autoimmune.anti_dsdna", Max: ptr(30)},
	{Key: "autoimmune.rf", Max: ptr(14)},
	{Key: "autoimmune.anti_ccp", Max: ptr(20)},
	{Key: "autoimmune.esr", Sex: model.SexMale, Max: ptr(15)},
	{Key: "autoimmune.esr", Sex: model.SexFemale, Max: ptr(20)},
	{Key: "autoimmune.esr", Max: ptr(20)},
	{Key: "autoimmune.crp", Max: ptr(5)},
	{Key: "autoimmune.c3", Min: ptr(90), Max: ptr(180)},
	{Key: "autoimmune.c4", Min: ptr(10), Max: ptr(40)},
	{Key: "autoimmune.basdai", Max: ptr(3.99)},

	// Cardiology
	{Key: "cardiology.systolic_bp", Min: ptr(90), Max: ptr(129)},
	{Key: "cardiology.diastolic_bp", Min: ptr(60), Max: ptr(84)},
	{Key: "cardiology.heart_rate", Min: ptr(60), Max: ptr(100)},
	{Key: "cardiology.ejection_fraction", Min: ptr(50), Max: ptr(70)},
	{Key: "cardiology.total_cholesterol", Max: ptr(200)},
	{Key: "cardiology.ldl", Max: ptr(100)},
	{Key: "cardiology.hdl", Sex: model.SexMale, Min: ptr(40)},
	{Key: "cardiology.hdl", Sex: model.SexFemale, Min: ptr(50)},
	{Key: "cardiology.hdl", Min: ptr(40)},
	{Key: "cardiology.triglycerides", Max: ptr(150)},
	{Key: "cardiology.troponin", Max: ptr(14)},

	// Renal function
	{Key: "rft.creatinine", Sex: model.SexMale, Min: ptr(0.74), Max: ptr(1.35)},
	{Key: "rft.creatinine", Sex: model.SexFemale, Min: ptr(0.59), Max: ptr(1.04)},
	{Key: "rft.creatinine", Min: ptr(0.59), Max: ptr(1.35)},
	{Key: "rft.urea", Min: ptr(15), Max: ptr(45)},
	{Key: "rft.uric_acid", Sex: model.SexMale, Min: ptr(3.4), Max: ptr(7.0)},
	{Key: "rft.uric_acid", Sex: model.SexFemale, Min: ptr(2.4), Max: ptr(6.0)},
	{Key: "rft.uric_acid", Min: ptr(2.4), Max: ptr(7.0)},
	{Key: "rft.sodium", Min: ptr(135), Max: ptr(145)},
	{Key: "rft.potassium", Min: ptr(3.5), Max: ptr(5.1)},
	{Key: "rft.chloride", Min: ptr(98), Max: ptr(107)},
	{Key: "rft.egfr", Min: ptr(60)},

	// Liver function
	{Key: "lft.total_bilirubin", Min: ptr(0.1), Max: ptr(1.2)},
	{Key: "lft.direct_bilirubin", Max: ptr(0.3)},
	{Key: "lft.alt", Min: ptr(7), Max: ptr(56)},
	{Key: "lft.ast", Min: ptr(10), Max: ptr(40)},
	{Key: "lft.alp", Min: ptr(44), Max: ptr(147)},
	{Key: "lft.ggt", Min: ptr(9), Max: ptr(48)},
	{Key: "lft.albumin", Min: ptr(3.5), Max: ptr(5.0)},
	{Key: "lft.total_protein", Min: ptr(6.0), Max: ptr(8.3)},

	// Disease history and vitals
	{Key: "disease_history.bmi", Min: ptr(18.5), Max: ptr(24.9)},
	{Key: "disease_history.temperature", Min: ptr(36.1), Max: ptr(37.2)},
	{Key: "disease_history.pulse_rate", Min: ptr(60), Max: ptr(100)},
	{Key: "disease_history.respiratory_rate", Min: ptr(12), Max: ptr(20)},
	{Key: "disease_history.spo2", Min: ptr(95)},
	{Key: "disease_history.blood_glucose", Min: ptr(70), Max: ptr(140)},

	// Hematology
	{Key: "hematology.hemoglobin", Sex: model.SexMale, Min: ptr(13.2), Max: ptr(16.6)},
	{Key: "hematology.hemoglobin", Sex: model.SexFemale, Min: ptr(11.6), Max: ptr(15.0)},
	{Key: "hematology.hemoglobin", Min: ptr(11.6), Max: ptr(16.6)},
	{Key: "hematology.wbc", Min: ptr(4.5), Max: ptr(11.0)},
	{Key: "hematology.platelets", Min: ptr(150), Max: ptr(450)},
	{Key: "hematology.rbc", Sex: model.SexMale, Min: ptr(4.35), Max: ptr(5.65)},
	{Key: "hematology.rbc", Sex: model.SexFemale, Min: ptr(3.92), Max: ptr(5.13)},
	{Key: "hematology.rbc", Min: ptr(3.92), Max: ptr(5.65)},
	{Key: "hematology.hematocrit", Sex: model.SexMale, Min: ptr(41), Max: ptr(50)},
	{Key: "hematology.hematocrit", Sex: model.SexFemale, Min: ptr(36), Max: ptr(44)},
	{Key: "hematology.hematocrit", Min: ptr(36), Max: ptr(50)},
	{Key: "hematology.mcv", Min: ptr(80), Max: ptr(96)},
	{Key: "hematology.neutrophils", Min: ptr(40), Max: ptr(70)},
	{Key: "hematology.lymphocytes", Min: ptr(20), Max: ptr(40)},
	{Key: "hematology.eosinophils", Min: ptr(1), Max: ptr(6)},
}

// RangeFor returns the reference range of a field for the given sex.
func RangeFor(key, sex string) (ReferenceRange, bool) {
	var fallback *ReferenceRange
	for i := range referenceRanges {
		r := &referenceRanges[i]
		if r.Key != key {
			continue
		}
		if r.Sex == sex && sex != sexAny {
			return *r, true
		}
		if r.Sex == sexAny {
			fallback = r
		}
	}
	if fallback == nil {
		return ReferenceRange{}, false
	}
	return *fallback, true
}

// Flag classifies a canonical value against its reference range. It returns
// "" when the field has no range.
func Flag(key string, value float64, sex string) string {
	r, ok := RangeFor(key, sex)
	if !ok {
		return ""
	}
	switch {
	case r.Min != nil && value < *r.Min:
		return FlagLow
	case r.Max != nil && value > *r.Max:
		return FlagHigh
	default:
		return FlagNormal
	}
}

// ApplyFlags sets the reference flag of every numeric field in the report.
func ApplyFlags(report *model.TestReport, sex string) {
	for _, d := range model.Domains {
		panel := report.Panel(d)
		for name, v := range panel {
			if v.Value == nil {
				continue
			}
			v.Flag = Flag(string(d)+"."+name, *v.Value, sex)
			panel[name] = v
		}
	}
}
