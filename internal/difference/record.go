package difference

import (
	"errors"
	"fmt"
)

// ErrMissingField means a record passed to Compare lacks a field. Both sides
// must be fully populated; a missing field is a bug in the caller.
var ErrMissingField = errors.New("missing field")

// Record holds the editable scalar fields of an object. A nil value is
// null.
type Record map[string]*string

// Field describes how one record field is compared.
type Field struct {
	Key      string
	Label    string
	Nullable bool
	Color    bool
}

func (f Field) diff(original, edited *string) []Difference {
	if f.Nullable {
		return Nullable(f.Label, original, edited, f.Color)
	}
	return Text(f.Label, *original, *edited, f.Color)
}

// Compare diffs two records field by field in the order of fields.
func Compare(original, edited Record, fields []Field) ([]Difference, error) {
	var diffs []Difference
	for _, f := range fields {
		a, b, err := values(f, original, edited)
		if err != nil {
			return nil, err
		}
		diffs = append(diffs, f.diff(a, b)...)
	}
	return diffs, nil
}

func values(f Field, original, edited Record) (*string, *string, error) {
	a, okA := original[f.Key]
	b, okB := edited[f.Key]
	switch {
	case !okA:
		return nil, nil, fmt.Errorf("original %q: %w", f.Key, ErrMissingField)
	case !okB:
		return nil, nil, fmt.Errorf("edited %q: %w", f.Key, ErrMissingField)
	}
	if !f.Nullable && (a == nil || b == nil) {
		return nil, nil, fmt.Errorf("null in non-nullable %q: %w", f.Key, ErrMissingField)
	}
	return a, b, nil
}
