package labs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/patient-records/internal/model"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
)

// MaxTextLength bounds free-text field values.
const MaxTextLength = 5000

// measurementPlaces is the precision kept after unit conversion.
const measurementPlaces = 3

// NormalizePanel validates the fields of one domain and converts measurements
// to canonical units. Empty values are dropped. Derived fields are rejected.
func NormalizePanel(d model.Domain, in model.Panel) (model.Panel, []apperrors.FieldError) {
	if len(in) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(model.Panel, len(in))
	var errs []apperrors.FieldError
	for _, name := range names {
		key := string(d) + "." + name
		v := in[name]
		if v.IsEmpty() {
			continue
		}

		f, ok := Lookup(key)
		if !ok {
			errs = append(errs, apperrors.FieldError{Field: key, Message: "is not a known report field"})
			continue
		}
		if f.Derived {
			errs = append(errs, apperrors.FieldError{Field: key, Message: "is calculated automatically"})
			continue
		}

		normalized, err := NormalizeValue(f, v)
		if err != nil {
			errs = append(errs, apperrors.FieldError{Field: key, Message: err.Error()})
			continue
		}
		out[name] = normalized
	}

	for _, f := range DomainFields(d) {
		if _, present := out[f.Name]; f.Required && !present && len(out) > 0 {
			errs = append(errs, apperrors.FieldError{Field: f.Key, Message: "is required"})
		}
	}

	if len(out) == 0 {
		out = nil
	}
	return out, errs
}

// NormalizeValue checks one value against its field definition and returns
// it in canonical form.
func NormalizeValue(f Field, v model.FieldValue) (model.FieldValue, error) {
	switch f.Kind {
	case KindMeasurement:
		return normalizeMeasurement(f, v)
	case KindNumber:
		return normalizeNumber(f, v)
	case KindText:
		return normalizeText(v)
	case KindEnum:
		return normalizeEnum(f, v)
	case KindDate:
		return normalizeDate(v)
	case KindScore:
		return normalizeScore(v)
	}
	return model.FieldValue{}, fmt.Errorf("has unsupported kind %s", f.Kind)
}

func numericValue(v model.FieldValue) (float64, error) {
	if v.Value == nil || v.Text != "" || len(v.Answers) > 0 {
		return 0, errors.New("must be a number")
	}
	if math.IsNaN(*v.Value) || math.IsInf(*v.Value, 0) {
		return 0, errors.New("must be a finite number")
	}
	return *v.Value, nil
}

func checkBounds(f Field, value float64) error {
	if f.min != nil && value < *f.min {
		return fmt.Errorf("must be at least %g %s", *f.min, f.Unit)
	}
	if f.max != nil && value > *f.max {
		return fmt.Errorf("must not exceed %g %s", *f.max, f.Unit)
	}
	return nil
}

func normalizeMeasurement(f Field, v model.FieldValue) (model.FieldValue, error) {
	value, err := numericValue(v)
	if err != nil {
		return model.FieldValue{}, err
	}

	from := v.Unit
	if from == "" {
		from = f.Unit
	}
	canonical, unit, err := ToCanonical(f.analyte, value, from)
	if errors.Is(err, ErrUnknownUnit) {
		return model.FieldValue{}, fmt.Errorf("unit %q is not supported; use one of %s",
			v.Unit, strings.Join(append([]string{f.Unit}, f.AltUnits...), ", "))
	}
	if errors.Is(err, ErrNotFinite) {
		return model.FieldValue{}, errors.New("is out of range")
	}
	if err != nil {
		return model.FieldValue{}, err
	}

	canonical = Round(canonical, measurementPlaces)
	if err := checkBounds(f, canonical); err != nil {
		return model.FieldValue{}, err
	}
	return model.FieldValue{Value: &canonical, Unit: unit}, nil
}

func normalizeNumber(f Field, v model.FieldValue) (model.FieldValue, error) {
	value, err := numericValue(v)
	if err != nil {
		return model.FieldValue{}, err
	}
	if v.Unit != "" && !SameUnit(v.Unit, f.Unit) {
		return model.FieldValue{}, fmt.Errorf("unit %q is not supported; use %s", v.Unit, f.Unit)
	}
	if err := checkBounds(f, value); err != nil {
		return model.FieldValue{}, err
	}
	return model.FieldValue{Value: &value, Unit: f.Unit}, nil
}

func textValue(v model.FieldValue) (string, error) {
	if v.Value != nil || len(v.Answers) > 0 {
		return "", errors.New("must be text")
	}
	s := strings.TrimSpace(v.Text)
	if len(s) > MaxTextLength {
		return "", fmt.Errorf("must not exceed %d characters", MaxTextLength)
	}
	return s, nil
}

func normalizeText(v model.FieldValue) (model.FieldValue, error) {
	s, err := textValue(v)
	if err != nil {
		return model.FieldValue{}, err
	}
	return model.FieldValue{Text: s}, nil
}

func normalizeEnum(f Field, v model.FieldValue) (model.FieldValue, error) {
	s, err := textValue(v)
	if err != nil {
		return model.FieldValue{}, err
	}
	s = strings.ToLower(s)
	for _, opt := range f.Options {
		if s == opt {
			return model.FieldValue{Text: s}, nil
		}
	}
	return model.FieldValue{}, fmt.Errorf("must be one of: %s", strings.Join(f.Options, ", "))
}

func normalizeDate(v model.FieldValue) (model.FieldValue, error) {
	s, err := textValue(v)
	if err != nil {
		return model.FieldValue{}, err
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return model.FieldValue{}, fmt.Errorf("must be a date formatted as %s", model.DateLayout)
	}
	if d.After(time.Now().UTC()) {
		return model.FieldValue{}, errors.New("must not be in the future")
	}
	return model.FieldValue{Text: d.String()}, nil
}

func normalizeScore(v model.FieldValue) (model.FieldValue, error) {
	if len(v.Answers) == 0 {
		return model.FieldValue{}, fmt.Errorf("requires %d answers", BASDAIQuestions)
	}
	res, err := BASDAI(v.Answers)
	if err != nil {
		return model.FieldValue{}, err
	}

	status := "inactive"
	if res.Active {
		status = "active"
	}
	answers := make([]float64, len(v.Answers))
	copy(answers, v.Answers)
	return model.FieldValue{Value: &res.Score, Text: status, Answers: answers, Derived: true}, nil
}

// NormalizeReport normalizes every payload of a report write. It returns a
// bad request AppError listing every invalid field.
func NormalizeReport(p model.ReportPayload) (map[model.Domain]model.Panel, error) {
	var errs []apperrors.FieldError
	out := make(map[model.Domain]model.Panel)
	in := p.Panels()
	for _, d := range model.Domains {
		panel, fieldErrs := NormalizePanel(d, in[d])
		errs = append(errs, fieldErrs...)
		if len(panel) > 0 {
			out[d] = panel
		}
	}

	if len(errs) > 0 {
		return nil, apperrors.Invalid(errs...)
	}
	if len(out) == 0 {
		return nil, apperrors.BadRequest("report must contain at least one domain payload", nil)
	}
	return out, nil
}

// SplitValues groups flat "<domain>.<field>" values into domain panels.
func SplitValues(values map[string]model.FieldValue) (model.ReportPayload, error) {
	var p model.ReportPayload
	panels := make(map[model.Domain]model.Panel)
	var errs []apperrors.FieldError

	for key, v := range values {
		d, name, ok := SplitKey(key)
		if !ok {
			errs = append(errs, apperrors.FieldError{Field: key, Message: "is not a known report field"})
			continue
		}
		if panels[d] == nil {
			panels[d] = make(model.Panel)
		}
		panels[d][name] = v
	}
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
		return p, apperrors.Invalid(errs...)
	}

	p.Autoimmune = panels[model.DomainAutoimmune]
	p.Cardiology = panels[model.DomainCardiology]
	p.RFT = panels[model.DomainRFT]
	p.LFT = panels[model.DomainLFT]
	p.DiseaseHistory = panels[model.DomainDiseaseHistory]
	p.Imaging = panels[model.DomainImaging]
	p.Hematology = panels[model.DomainHematology]
	return p, nil
}

// Derive fills calculated fields (BMI, eGFR) from the report's measurements
// and the patient's demographics. Calculated values whose inputs are missing
// are removed.
func Derive(report *model.TestReport, patient *model.Patient) {
	deriveBMI(report)
	deriveEGFR(report, patient)
}

func deriveBMI(report *model.TestReport) {
	history := report.DiseaseHistory
	if history == nil {
		return
	}
	delete(history, "bmi")

	weight, height := history["weight"], history["height"]
	if weight.Value == nil || height.Value == nil {
		return
	}
	bmi, err := BMI(*weight.Value, *height.Value)
	if err != nil {
		return
	}
	history["bmi"] = model.FieldValue{Value: &bmi, Unit: "kg/m²", Derived: true}
}

func deriveEGFR(report *model.TestReport, patient *model.Patient) {
	rft := report.RFT
	if rft == nil {
		return
	}
	delete(rft, "egfr")

	creatinine := rft["creatinine"]
	if creatinine.Value == nil || patient == nil {
		return
	}
	age := patient.AgeAt(report.ReportDate.Time)
	if age == nil {
		return
	}
	egfr, err := EGFR(*creatinine.Value, *age, patient.Sex)
	if err != nil {
		return
	}
	rft["egfr"] = model.FieldValue{Value: &egfr, Unit: "mL/min/1.73m²", Derived: true}
}
