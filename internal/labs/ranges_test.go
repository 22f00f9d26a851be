package labs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/patient-records/internal/model"
)

func TestFlag(t *testing.T) {
	tests := []struct {
		key   string
		value float64
		sex   string
		want  string
	}{
		{"rft.creatinine", 1.2, "male", FlagNormal},
		{"rft.creatinine", 1.2, "female", FlagHigh},
		{"rft.creatinine", 1.2, "", FlagNormal},
		{"rft.creatinine", 0.5, "other", FlagLow},
		{"hematology.hemoglobin", 12.0, "male", FlagLow},
		{"hematology.hemoglobin", 12.0, "female", FlagNormal},
		{"cardiology.hdl", 45, "female", FlagLow},
		{"cardiology.ldl", 20, "", FlagNormal},
		{"rft.egfr", 45, "", FlagLow},
		{"autoimmune.basdai", 4, "", FlagHigh},
		{"imaging.findings", 1, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key+"/"+tt.sex, func(t *testing.T) {
			assert.Equal(t, tt.want, Flag(tt.key, tt.value, tt.sex))
		})
	}
}

func TestEveryRangeNamesACatalogueField(t *testing.T) {
	for _, r := range referenceRanges {
		f, ok := Lookup(r.Key)
		if assert.True(t, ok, r.Key) {
			assert.True(t, f.Numeric(), r.Key)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	report := &model.TestReport{
		RFT: model.Panel{
			"creatinine":    {Value: model.Float(2.1), Unit: "mg/dL"},
			"urine_protein": {Text: "trace"},
		},
	}

	ApplyFlags(report, model.SexMale)

	assert.Equal(t, FlagHigh, report.RFT["creatinine"].Flag)
	assert.Empty(t, report.RFT["urine_protein"].Flag)
}
