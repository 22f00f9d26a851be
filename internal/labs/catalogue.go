package labs

import (
	"strings"

	"github.com/jwalitptl/patient-records/internal/model"
)

// Kind classifies how a field is recorded.
type Kind string

const (
	KindMeasurement Kind = "measurement"
	KindNumber      Kind = "number"
	KindText        Kind = "text"
	KindEnum        Kind = "enum"
	KindDate        Kind = "date"
	KindScore       Kind = "score"
)

// Field describes one recordable report field.
type Field struct {
	Key      string       `json:"key"`
	Domain   model.Domain `json:"domain"`
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Kind     Kind         `json:"kind"`
	Unit     string       `json:"unit,omitempty"`
	AltUnits []string     `json:"alt_units,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Derived  bool         `json:"derived,omitempty"`
	Required bool         `json:"required,omitempty"`

	analyte string
	min     *float64
	max     *float64
}

func ptr(f float64) *float64 {
	return &f
}

// maxMeasurement caps measurements in their canonical unit.
const maxMeasurement = 1e6

func measurement(name, label, analyteName string) Field {
	return Field{Name: name, Label: label, Kind: KindMeasurement, analyte: analyteName, min: ptr(0), max: ptr(maxMeasurement)}
}

func number(name, label, unit string, min, max float64) Field {
	return Field{Name: name, Label: label, Kind: KindNumber, Unit: unit, min: ptr(min), max: ptr(max)}
}

func text(name, label string) Field {
	return Field{Name: name, Label: label, Kind: KindText}
}

func enum(name, label string, options ...string) Field {
	return Field{Name: name, Label: label, Kind: KindEnum, Options: options}
}

var positiveNegative = []string{"positive", "negative"}

var domainFields = []struct {
	domain model.Domain
	fields []Field
}{
	{model.DomainAutoimmune, []Field{
		enum("ana", "ANA", "positive", "negative", "borderline"),
		text("ana_titre", "ANA titre"),
		text("ana_pattern", "ANA pattern"),
		measurement("anti_dsdna", "Anti-dsDNA", AnalyteAntibodyIU),
		measurement("rf", "Rheumatoid factor", AnalyteAntibodyIU),
		measurement("anti_ccp", "Anti-CCP", AnalyteAntibodyU),
		enum("hla_b27", "HLA-B27", positiveNegative...),
		measurement("esr", "ESR", AnalyteESR),
		measurement("crp", "CRP", AnalyteCRP),
		measurement("c3", "Complement C3", AnalyteComplement),
		measurement("c4", "Complement C4", AnalyteComplement),
		{Name: "basdai", Label: "BASDAI", Kind: KindScore},
	}},
	{model.DomainCardiology, []Field{
		number("systolic_bp", "Systolic blood pressure", "mmHg", 40, 300),
		number("diastolic_bp", "Diastolic blood pressure", "mmHg", 20, 200),
		number("heart_rate", "Heart rate", "bpm", 20, 300),
		text("ecg", "ECG"),
		number("ejection_fraction", "Ejection fraction", "%", 0, 100),
		measurement("total_cholesterol", "Total cholesterol", AnalyteCholesterol),
		measurement("ldl", "LDL cholesterol", AnalyteCholesterol),
		measurement("hdl", "HDL cholesterol", AnalyteCholesterol),
		measurement("triglycerides", "Triglycerides", AnalyteTriglycerides),
		measurement("troponin", "Troponin", AnalyteTroponin),
	}},
	{model.DomainRFT, []Field{
		measurement("creatinine", "Creatinine", AnalyteCreatinine),
		measurement("urea", "Urea", AnalyteUrea),
		measurement("uric_acid", "Uric acid", AnalyteUricAcid),
		measurement("sodium", "Sodium", AnalyteElectrolyte),
		measurement("potassium", "Potassium", AnalyteElectrolyte),
		measurement("chloride", "Chloride", AnalyteElectrolyte),
		text("urine_protein", "Urine protein"),
		{Name: "egfr", Label: "eGFR", Kind: KindNumber, Unit: "mL/min/1.73m²", Derived: true},
	}},
	{model.DomainLFT, []Field{
		measurement("total_bilirubin", "Total bilirubin", AnalyteBilirubin),
		measurement("direct_bilirubin", "Direct bilirubin", AnalyteBilirubin),
		number("alt", "ALT", "U/L", 0, 10000),
		number("ast", "AST", "U/L", 0, 10000),
		number("alp", "ALP", "U/L", 0, 10000),
		number("ggt", "GGT", "U/L", 0, 10000),
		measurement("albumin", "Albumin", AnalyteProtein),
		measurement("total_protein", "Total protein", AnalyteProtein),
	}},
	{model.DomainDiseaseHistory, []Field{
		measurement("weight", "Weight", AnalyteWeight),
		measurement("height", "Height", AnalyteHeight),
		{Name: "bmi", Label: "BMI", Kind: KindNumber, Unit: "kg/m²", Derived: true},
		{Name: "temperature", Label: "Temperature", Kind: KindMeasurement, analyte: AnalyteTemperature, min: ptr(25), max: ptr(45)},
		number("pulse_rate", "Pulse rate", "bpm", 20, 300),
		number("respiratory_rate", "Respiratory rate", "breaths/min", 1, 100),
		number("spo2", "SpO2", "%", 0, 100),
		measurement("blood_glucose", "Blood glucose", AnalyteGlucose),
		text("complaints", "Presenting complaints"),
		text("disease_duration", "Disease duration"),
		text("comorbidities", "Comorbidities"),
		text("medications", "Medications"),
		text("family_history", "Family history"),
		text("notes", "Notes"),
	}},
	{model.DomainImaging, []Field{
		{Name: "modality", Label: "Modality", Kind: KindEnum, Required: true,
			Options: []string{"xray", "ct", "mri", "ultrasound", "dexa", "other"}},
		text("body_region", "Body region"),
		text("findings", "Findings"),
		text("impression", "Impression"),
		{Name: "performed_at", Label: "Performed on", Kind: KindDate},
	}},
	{model.DomainHematology, []Field{
		measurement("hemoglobin", "Hemoglobin", AnalyteProtein),
		number("wbc", "White blood cells", "×10³/µL", 0, 1000),
		number("platelets", "Platelets", "×10³/µL", 0, 5000),
		number("rbc", "Red blood cells", "×10⁶/µL", 0, 20),
		number("hematocrit", "Hematocrit", "%", 0, 100),
		number("mcv", "MCV", "fL", 0, 200),
		number("neutrophils", "Neutrophils", "%", 0, 100),
		number("lymphocytes", "Lymphocytes", "%", 0, 100),
		number("eosinophils", "Eosinophils", "%", 0, 100),
	}},
}

var (
	catalogue []Field
	byKey     map[string]Field
)

func init() {
	byKey = make(map[string]Field)
	for _, group := range domainFields {
		for _, f := range group.fields {
			f.Domain = group.domain
			f.Key = string(group.domain) + "." + f.Name
			if f.analyte != "" {
				units, _ := Units(f.analyte)
				f.Unit = units[0]
				f.AltUnits = units[1:]
			}
			catalogue = append(catalogue, f)
			byKey[f.Key] = f
		}
	}
}

// Catalogue returns every field in display order.
func Catalogue() []Field {
	out := make([]Field, len(catalogue))
	copy(out, catalogue)
	return out
}

// DomainFields returns the fields of one domain in display order.
func DomainFields(d model.Domain) []Field {
	var out []Field
	for _, f := range catalogue {
		if f.Domain == d {
			out = append(out, f)
		}
	}
	return out
}

// Lookup finds a field by its "<domain>.<field>" key.
func Lookup(key string) (Field, bool) {
	f, ok := byKey[strings.TrimSpace(key)]
	return f, ok
}

// IsFieldKey reports whether key names a catalogue field.
func IsFieldKey(key string) bool {
	_, ok := Lookup(key)
	return ok
}

// SplitKey separates a field key into its domain and field name.
func SplitKey(key string) (model.Domain, string, bool) {
	f, ok := Lookup(key)
	if !ok {
		return "", "", false
	}
	return f.Domain, f.Name, true
}

// Analyte returns the conversion analyte of a measurement field.
func (f Field) Analyte() string {
	return f.analyte
}

// Numeric reports whether the field holds a number.
func (f Field) Numeric() bool {
	return f.Kind == KindMeasurement || f.Kind == KindNumber || f.Kind == KindScore
}
