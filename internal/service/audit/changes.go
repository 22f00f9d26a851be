package audit

import (
	"reflect"
	"strings"
)

// Change is the before and after value of one field.
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Diff compares two values of the same struct type field by field and
// returns the differing fields keyed by their JSON names. Fields tagged
// json:"-" are skipped and embedded structs are flattened.
func Diff(old, new interface{}) map[string]Change {
	changes := make(map[string]Change)
	if old == nil || new == nil {
		return changes
	}

	oldFields := fields(reflect.ValueOf(old))
	for name, newValue := range fields(reflect.ValueOf(new)) {
		oldValue, ok := oldFields[name]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(oldValue, newValue) {
			changes[name] = Change{Old: oldValue, New: newValue}
		}
	}
	return changes
}

// ChangedFields lists the names in a diff.
func ChangedFields(changes map[string]Change) []string {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	return names
}

func fields(val reflect.Value) map[string]interface{} {
	result := make(map[string]interface{})
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return result
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return result
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			for k, v := range fields(val.Field(i)) {
				result[k] = v
			}
			continue
		}

		tag := strings.Split(field.Tag.Get("json"), ",")[0]
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(field.Name)
		}
		result[tag] = val.Field(i).Interface()
	}
	return result
}
