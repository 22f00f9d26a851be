package favourite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/patient-records/internal/labs"
	"github.com/jwalitptl/patient-records/internal/model"
	"github.com/jwalitptl/patient-records/internal/service/report"
	apperrors "github.com/jwalitptl/patient-records/pkg/errors"
	"github.com/jwalitptl/patient-records/pkg/security"
)

// Entry is one favourite with its latest value for a patient.
type Entry struct {
	Field  labs.Field        `json:"field"`
	Latest *model.FieldPoint `json:"latest,omitempty"`
}

// QuickEntryView is the quick-entry form of one patient.
type QuickEntryView struct {
	Patient *model.PatientDetail `json:"patient"`
	Fields  []Entry              `json:"fields"`
}

// Service manages favourite field lists. The list lives only in an encrypted
// browser cookie; nothing is stored server-side.
type Service struct {
	enc     security.Encryptor
	reports *report.Service
}

func NewService(enc security.Encryptor, reports *report.Service) *Service {
	return &Service{enc: enc, reports: reports}
}

// Decode reads a cookie value. A missing or tampered cookie yields an empty
// list, as do entries that no longer name a catalogue field.
func (s *Service) Decode(cookie string) []string {
	if cookie == "" {
		return []string{}
	}
	raw, err := security.DecryptToken(s.enc, cookie)
	if err != nil {
		return []string{}
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return []string{}
	}
	return clean(keys)
}

// Encode seals a list into a cookie value.
func (s *Service) Encode(keys []string) (string, error) {
	raw, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("failed to encode favourites: %w", err)
	}
	token, err := security.EncryptToken(s.enc, raw)
	if err != nil {
		return "", fmt.Errorf("failed to seal favourites: %w", err)
	}
	return token, nil
}

// Add appends key to the list. Adding a present key changes nothing.
func (s *Service) Add(current []string, key string) ([]string, error) {
	if !labs.IsFieldKey(key) {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown field %q", key), nil)
	}
	for _, k := range current {
		if k == key {
			return current, nil
		}
	}
	if len(current) >= model.MaxFavourites {
		return nil, apperrors.BadRequest(fmt.Sprintf("at most %d favourites are allowed", model.MaxFavourites), nil)
	}
	return append(current, key), nil
}

// Remove drops key from the list if present.
func (s *Service) Remove(current []string, key string) []string {
	out := make([]string, 0, len(current))
	for _, k := range current {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// Replace validates a full ordered list. Duplicates keep their first position.
func (s *Service) Replace(keys []string) ([]string, error) {
	var errs []apperrors.FieldError
	for i, k := range keys {
		if !labs.IsFieldKey(k) {
			errs = append(errs, apperrors.FieldError{Field: fmt.Sprintf("fields[%d]", i), Message: "is not a known report field"})
		}
	}
	if len(errs) > 0 {
		return nil, apperrors.Invalid(errs...)
	}

	out := clean(keys)
	if len(out) > model.MaxFavourites {
		return nil, apperrors.BadRequest(fmt.Sprintf("at most %d favourites are allowed", model.MaxFavourites), nil)
	}
	return out, nil
}

// Fields resolves keys to their catalogue definitions.
func (s *Service) Fields(keys []string) []labs.Field {
	fields := make([]labs.Field, 0, len(keys))
	for _, k := range keys {
		if f, ok := labs.Lookup(k); ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// QuickEntry pairs each favourite with the patient's latest value for it.
func (s *Service) QuickEntry(ctx context.Context, patientID uuid.UUID, keys []string) (*QuickEntryView, error) {
	patient, err := s.reports.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	view := &QuickEntryView{Patient: patient, Fields: make([]Entry, 0, len(keys))}
	for _, f := range s.Fields(keys) {
		latest, err := s.reports.LatestValue(ctx, patientID, f, patient.Sex)
		if err != nil {
			return nil, err
		}
		view.Fields = append(view.Fields, Entry{Field: f, Latest: latest})
	}
	return view, nil
}

func clean(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if seen[k] || !labs.IsFieldKey(k) {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
