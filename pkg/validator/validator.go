package validator

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/patient-records/pkg/errors"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

var clinicNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/_.-]{0,31}$`)

// now is replaced in tests.
var now = time.Now

// FieldKeyFunc reports whether a "<domain>.<field>" key exists in the field catalogue.
type FieldKeyFunc func(key string) bool

// New builds a validator with the custom tags used by request types. loc
// decides which calendar day notfuture treats as today; nil means UTC.
func New(isFieldKey FieldKeyFunc, loc *time.Location) (*validator.Validate, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := Register(v, isFieldKey, loc); err != nil {
		return nil, err
	}
	return v, nil
}

// Setup installs the custom tags on gin's binding validator.
func Setup(isFieldKey FieldKeyFunc, loc *time.Location) error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return stderrors.New("gin binding engine is not go-playground/validator")
	}
	return Register(v, isFieldKey, loc)
}

// Register adds notfuture, clinicnumber, sex and fieldkey to v and reports
// field names by their json tag.
func Register(v *validator.Validate, isFieldKey FieldKeyFunc, loc *time.Location) error {
	v.RegisterTagNameFunc(jsonName)

	if loc == nil {
		loc = time.UTC
	}
	if err := v.RegisterValidation("notfuture", notFuture(loc)); err != nil {
		return fmt.Errorf("failed to register notfuture: %w", err)
	}
	if err := v.RegisterValidation("clinicnumber", clinicNumber); err != nil {
		return fmt.Errorf("failed to register clinicnumber: %w", err)
	}
	if err := v.RegisterValidation("sex", sex); err != nil {
		return fmt.Errorf("failed to register sex: %w", err)
	}
	if isFieldKey == nil {
		isFieldKey = func(string) bool { return false }
	}
	err := v.RegisterValidation("fieldkey", func(fl validator.FieldLevel) bool {
		return isFieldKey(fl.Field().String())
	})
	if err != nil {
		return fmt.Errorf("failed to register fieldkey: %w", err)
	}
	return nil
}

func jsonName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form", "uri"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// notFuture accepts dates up to and including today in loc. Plain dates
// are calendar days; timestamps are first moved into loc.
func notFuture(loc *time.Location) validator.Func {
	return func(fl validator.FieldLevel) bool {
		today := calendarDay(now().In(loc))

		switch val := fl.Field().Interface().(type) {
		case time.Time:
			return val.IsZero() || !calendarDay(val.In(loc)).After(today)
		case string:
			if val == "" {
				return true
			}
			if d, err := time.Parse(DateLayout, val); err == nil {
				return !d.After(today)
			}
			t, err := time.Parse(time.RFC3339, val)
			if err != nil {
				return false
			}
			return !calendarDay(t.In(loc)).After(today)
		default:
			return false
		}
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clinicNumber(fl validator.FieldLevel) bool {
	return clinicNumberPattern.MatchString(strings.TrimSpace(fl.Field().String()))
}

func sex(fl validator.FieldLevel) bool {
	switch strings.ToLower(fl.Field().String()) {
	case "", "male", "female", "other":
		return true
	}
	return false
}

// Translate converts validator errors into field messages. Other errors
// (malformed JSON, wrong types) come back as a single entry with an empty field.
func Translate(err error) []errors.FieldError {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return []errors.FieldError{{Message: err.Error()}}
	}

	out := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, errors.FieldError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return out
}

// BindingError wraps a gin binding failure as a 400 AppError.
func BindingError(err error) *errors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		return errors.Invalid(Translate(err)...)
	}
	return errors.BadRequest("invalid request body", err)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with", "required_if":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return fmt.Sprintf("must be a date formatted as %s", fe.Param())
	case "notfuture":
		return "must not be in the future"
	case "clinicnumber":
		return "must be 1-32 letters, digits or / _ . - characters"
	case "sex":
		return "must be male, female or other"
	case "fieldkey":
		return "is not a known report field"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
