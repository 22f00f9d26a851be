package labs

import (
	"errors"
	"fmt"
	"math"

	"github.com/jwalitptl/patient-records/internal/model"
)

// BASDAIQuestions is the number of answers in a BASDAI questionnaire.
const BASDAIQuestions = 6

// BASDAIActiveThreshold is the score from which disease is considered active.
const BASDAIActiveThreshold = 4.0

var (
	ErrBASDAIAnswers = errors.New("basdai requires six answers between 0 and 10")
	ErrEGFRInputs    = errors.New("egfr requires creatinine above zero, age 18 or over and sex male or female")
	ErrBMIInputs     = errors.New("bmi requires weight and height above zero")
)

// BASDAIResult is a scored questionnaire.
type BASDAIResult struct {
	Score  float64 `json:"score"`
	Active bool    `json:"active"`
}

// BASDAI scores the Bath Ankylosing Spondylitis Disease Activity Index.
// Questions 5 and 6 (morning stiffness) are averaged before the total is divided by five.
func BASDAI(answers []float64) (BASDAIResult, error) {
	if len(answers) != BASDAIQuestions {
		return BASDAIResult{}, fmt.Errorf("%w: got %d answers", ErrBASDAIAnswers, len(answers))
	}
	for i, a := range answers {
		if math.IsNaN(a) || a < 0 || a > 10 {
			return BASDAIResult{}, fmt.Errorf("%w: answer %d is %v", ErrBASDAIAnswers, i+1, a)
		}
	}

	sum := answers[0] + answers[1] + answers[2] + answers[3] + (answers[4]+answers[5])/2
	score := Round(sum/5, 2)
	return BASDAIResult{Score: score, Active: score >= BASDAIActiveThreshold}, nil
}

// EGFR estimates glomerular filtration rate with the race-free CKD-EPI 2021
// creatinine equation. Creatinine is in mg/dL; the result is mL/min/1.73m²
// rounded to a whole number.
func EGFR(creatinine float64, age int, sex string) (float64, error) {
	if !isFinite(creatinine) || creatinine <= 0 || age < 18 {
		return 0, ErrEGFRInputs
	}

	var kappa, alpha, factor float64
	switch sex {
	case model.SexFemale:
		kappa, alpha, factor = 0.7, -0.241, 1.012
	case model.SexMale:
		kappa, alpha, factor = 0.9, -0.302, 1
	default:
		return 0, ErrEGFRInputs
	}

	ratio := creatinine / kappa
	egfr := 142 *
		math.Pow(math.Min(ratio, 1), alpha) *
		math.Pow(math.Max(ratio, 1), -1.200) *
		math.Pow(0.9938, float64(age)) *
		factor
	return math.Round(egfr), nil
}

// BMI computes body mass index from kg and cm, rounded to one decimal.
func BMI(weightKg, heightCm float64) (float64, error) {
	if weightKg <= 0 || heightCm <= 0 {
		return 0, ErrBMIInputs
	}
	m := heightCm / 100
	bmi := weightKg / (m * m)
	if !isFinite(bmi) {
		return 0, ErrBMIInputs
	}
	return Round(bmi, 1), nil
}
