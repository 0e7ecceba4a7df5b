package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// KindMedications holds medication records
	KindMedications = "medicamentos"
	// KindMedicalDevices holds medical device records
	KindMedicalDevices = "dispositivos_medicos"
	// KindBiomedicalEquipment holds biomedical equipment records
	KindBiomedicalEquipment = "equipos_biomedicos"
	// KindReagents holds reagent surveillance (reactivo vigilancia) records
	KindReagents = "reactivos_vigilancia"
	// KindInventory holds inventory records
	KindInventory = "inventarios"
	// KindMaintenance holds maintenance log records
	KindMaintenance = "mantenimientos"

	// DateLayout is the layout of all date fields
	DateLayout = "2006-01-02"
)

// Keys of the flat JSON representation that are not form fields
const (
	keyID        = "id"
	keyCreatedBy = "creado_por"
	keyCreatedAt = "created_at"
	keyUpdatedAt = "updated_at"
)

// FieldSpec describes a single form field of a record kind
type FieldSpec struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
	// Date fields carry a YYYY-MM-DD value
	Date bool `json:"date,omitempty"`
	// Numeric fields carry a non-negative integer
	Numeric bool `json:"numeric,omitempty"`
	// Maximum length in characters. Zero means no limit
	MaxLen int `json:"maxLength,omitempty"`
}

// RecordKind describes one kind of inventory record
type RecordKind struct {
	Name   string      `json:"name"`
	Label  string      `json:"label"`
	Fields []FieldSpec `json:"fields"`
	// Token needed to see records of this kind. Empty means every logged-in user may see them
	ViewPermission string `json:"viewPermission,omitempty"`
	// Token needed to create or change records of this kind. Empty means every logged-in user may do so
	CreatePermission string `json:"createPermission,omitempty"`
}

// FieldNames returns the names of all fields in form order
func (k *RecordKind) FieldNames() []string {
	ret := make([]string, 0, len(k.Fields))
	for _, f := range k.Fields {
		ret = append(ret, f.Name)
	}
	return ret
}

// Record is a single inventory record of any kind
type Record struct {
	ID        uint
	Kind      string
	Fields    map[string]string
	CreatedBy uint
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarshalJSON writes the record as flat object of form fields plus metadata
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Fields)+4)
	for k, v := range r.Fields {
		out[k] = v
	}
	out[keyID] = r.ID
	out[keyCreatedBy] = r.CreatedBy
	if !r.CreatedAt.IsZero() {
		out[keyCreatedAt] = r.CreatedAt
	}
	if !r.UpdatedAt.IsZero() {
		out[keyUpdatedAt] = r.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a flat record object. Values of form fields are converted to strings
func (r *Record) UnmarshalJSON(data []byte) error {
	var in map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	// Numbers are kept as written, IDs must not pass through float64
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	r.Fields = make(map[string]string, len(in))
	for k, v := range in {
		switch k {
		case keyID:
			id, err := toUint(v)
			if err != nil {
				return fmt.Errorf("record id: %v", err)
			}
			r.ID = id
		case keyCreatedBy:
			// The remote API may send a nested user object here - only numeric IDs are kept
			if id, err := toUint(v); err == nil {
				r.CreatedBy = id
			}
		case keyCreatedAt:
			r.CreatedAt = toTime(v)
		case keyUpdatedAt:
			r.UpdatedAt = toTime(v)
		default:
			if s, ok := toString(v); ok {
				r.Fields[k] = s
			}
		}
	}
	return nil
}

// toUint reads an ID. Fractions, negative and out of range values are rejected
func toUint(v interface{}) (uint, error) {
	var str string
	switch val := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		str = val.String()
	case string:
		if val == "" {
			return 0, nil
		}
		str = val
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	n, err := strconv.ParseUint(str, 10, strconv.IntSize)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", str)
	}
	return uint(n), nil
}

func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

func toTime(v interface{}) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DayCount is the number of records created on a single day
type DayCount struct {
	Day   string `db:"day" json:"fecha"`
	Count uint   `db:"total" json:"total"`
}

// Export is a file generated from the records of one kind
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}
