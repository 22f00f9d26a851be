package labs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrUnknownAnalyte = errors.New("unknown analyte")
	ErrUnknownUnit    = errors.New("unsupported unit")
	ErrNotFinite      = errors.New("value is not a finite number")
)

// Analyte names used for conversion.
const (
	AnalyteCreatinine    = "creatinine"
	AnalyteUrea          = "urea"
	AnalyteUricAcid      = "uric_acid"
	AnalyteBilirubin     = "bilirubin"
	AnalyteGlucose       = "glucose"
	AnalyteCholesterol   = "cholesterol"
	AnalyteTriglycerides = "triglycerides"
	AnalyteProtein       = "protein"
	AnalyteCRP           = "crp"
	AnalyteComplement    = "complement"
	AnalyteTroponin      = "troponin"
	AnalyteElectrolyte   = "electrolyte"
	AnalyteESR           = "esr"
	AnalyteAntibodyIU    = "antibody_iu"
	AnalyteAntibodyU     = "antibody_u"
	AnalyteWeight        = "weight"
	AnalyteHeight        = "height"
	AnalyteTemperature   = "temperature"
)

// unit pairs a display name with the factor that converts it to the
// analyte's canonical unit (canonical = value * factor).
type unit struct {
	name   string
	factor float64
}

type analyte struct {
	units []unit // units[0] is canonical
}

var analytes = map[string]analyte{
	AnalyteCreatinine:    {units: []unit{{"mg/dL", 1}, {"µmol/L", 1 / 88.42}}},
	AnalyteUrea:          {units: []unit{{"mg/dL", 1}, {"mmol/L", 1 / 0.1665}}},
	AnalyteUricAcid:      {units: []unit{{"mg/dL", 1}, {"µmol/L", 1 / 59.48}}},
	AnalyteBilirubin:     {units: []unit{{"mg/dL", 1}, {"µmol/L", 1 / 17.1}}},
	AnalyteGlucose:       {units: []unit{{"mg/dL", 1}, {"mmol/L", 18.016}}},
	AnalyteCholesterol:   {units: []unit{{"mg/dL", 1}, {"mmol/L", 38.67}}},
	AnalyteTriglycerides: {units: []unit{{"mg/dL", 1}, {"mmol/L", 88.57}}},
	AnalyteProtein:       {units: []unit{{"g/dL", 1}, {"g/L", 0.1}}},
	AnalyteCRP:           {units: []unit{{"mg/L", 1}, {"mg/dL", 10}}},
	AnalyteComplement:    {units: []unit{{"mg/dL", 1}, {"g/L", 100}}},
	AnalyteTroponin:      {units: []unit{{"ng/L", 1}, {"ng/mL", 1000}, {"pg/mL", 1}}},
	AnalyteElectrolyte:   {units: []unit{{"mmol/L", 1}, {"mEq/L", 1}}},
	AnalyteESR:           {units: []unit{{"mm/hr", 1}}},
	AnalyteAntibodyIU:    {units: []unit{{"IU/mL", 1}}},
	AnalyteAntibodyU:     {units: []unit{{"U/mL", 1}}},
	AnalyteWeight:        {units: []unit{{"kg", 1}, {"lb", 0.45359237}, {"g", 0.001}}},
	AnalyteHeight:        {units: []unit{{"cm", 1}, {"in", 2.54}, {"m", 100}}},
	AnalyteTemperature:   {units: []unit{{"°C", 1}, {"°F", 1}}},
}

var unitAliases = map[string]string{
	"mcmol/l":    "umol/l",
	"mm/h":       "mm/hr",
	"mmhr":       "mm/hr",
	"lbs":        "lb",
	"pound":      "lb",
	"pounds":     "lb",
	"kgs":        "kg",
	"inch":       "in",
	"inches":     "in",
	"degc":       "c",
	"celsius":    "c",
	"degf":       "f",
	"fahrenheit": "f",
}

// unitKey folds spelling variants so that "µmol/L", "μmol/l" and "umol/L" compare equal.
func unitKey(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.NewReplacer("µ", "u", "μ", "u", " ", "", "°", "").Replace(u)
	if alias, ok := unitAliases[u]; ok {
		return alias
	}
	return u
}

// SameUnit reports whether two unit spellings denote the same unit.
func SameUnit(a, b string) bool {
	return unitKey(a) == unitKey(b)
}

// Analytes returns the names of all convertible analytes.
func Analytes() []string {
	names := make([]string, 0, len(analytes))
	for name := range analytes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Units returns the accepted units for an analyte, canonical first.
func Units(name string) ([]string, error) {
	a, ok := analytes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAnalyte, name)
	}
	out := make([]string, len(a.units))
	for i, u := range a.units {
		out[i] = u.name
	}
	return out, nil
}

// CanonicalUnit returns the unit values of an analyte are stored in.
func CanonicalUnit(name string) (string, error) {
	a, ok := analytes[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAnalyte, name)
	}
	return a.units[0].name, nil
}

func (a analyte) find(u string) (unit, bool) {
	key := unitKey(u)
	for _, candidate := range a.units {
		if unitKey(candidate.name) == key {
			return candidate, true
		}
	}
	return unit{}, false
}

// Convert converts value of the named analyte between two units. Both the
// input and the result must be finite.
func Convert(name string, value float64, from, to string) (float64, error) {
	if !isFinite(value) {
		return 0, ErrNotFinite
	}
	a, ok := analytes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAnalyte, name)
	}
	src, ok := a.find(from)
	if !ok {
		return 0, fmt.Errorf("%w: %s for %s", ErrUnknownUnit, from, name)
	}
	dst, ok := a.find(to)
	if !ok {
		return 0, fmt.Errorf("%w: %s for %s", ErrUnknownUnit, to, name)
	}

	var out float64
	if name == AnalyteTemperature {
		out = convertTemperature(value, unitKey(src.name), unitKey(dst.name))
	} else {
		out = value * src.factor / dst.factor
	}
	if !isFinite(out) {
		return 0, fmt.Errorf("%w: %s overflows when converted to %s", ErrNotFinite, from, to)
	}
	return out, nil
}

// ToCanonical converts value into the analyte's canonical unit.
func ToCanonical(name string, value float64, from string) (float64, string, error) {
	canonical, err := CanonicalUnit(name)
	if err != nil {
		return 0, "", err
	}
	v, err := Convert(name, value, from, canonical)
	if err != nil {
		return 0, "", err
	}
	return v, canonical, nil
}

func convertTemperature(v float64, from, to string) float64 {
	if from == to {
		return v
	}
	if from == "f" {
		return (v - 32) * 5 / 9
	}
	return v*9/5 + 32
}

// Round rounds v to the given number of decimal places. Values too large to
// scale are returned unchanged; they carry no fractional digits anyway.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	scaled := v * p
	if math.IsInf(scaled, 0) || math.IsNaN(scaled) {
		return v
	}
	return math.Round(scaled) / p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
