// Package difference compares an original record with its edited version
// and describes every change in a form a confirmation dialog can show.
//
// Nullable fields distinguish null from the empty string: a value going
// from null to "" is reported as a null status change ("null" to "blank"),
// and a value going from null to text is reported twice, once for the null
// status and once for the text.
package difference

// Difference is one reportable change.
type Difference struct {
	Name          string `json:"name"`
	OriginalValue string `json:"originalValue"`
	EditedValue   string `json:"editedValue"`
	// ColorDifferences selects a token-level rendering instead of a plain
	// before/after replacement.
	ColorDifferences bool `json:"colorDifferences"`
}

const (
	nullStatusSuffix = " - null status"
	textSuffix       = " - text"

	statusNull    = "null"
	statusBlank   = "blank"
	statusNotNull = "not null"
)

// Text compares two non-nullable values.
func Text(name, original, edited string, color bool) []Difference {
	if original == edited {
		return nil
	}
	return []Difference{{
		Name:             name,
		OriginalValue:    original,
		EditedValue:      edited,
		ColorDifferences: color,
	}}
}

// Nullable compares two nullable values.
func Nullable(name string, original, edited *string, color bool) []Difference {
	switch {
	case original == nil && edited == nil:
		return nil
	case original == nil:
		return nullTransition(name, *edited, false, color)
	case edited == nil:
		return nullTransition(name, *original, true, color)
	default:
		return Text(name, *original, *edited, color)
	}
}

// nullTransition describes a value appearing (reverse false) or
// disappearing (reverse true).
func nullTransition(name, value string, reverse, color bool) []Difference {
	status := statusBlank
	if value != "" {
		status = statusNotNull
	}

	statusDiff := Difference{Name: name + nullStatusSuffix, OriginalValue: statusNull, EditedValue: status}
	if reverse {
		statusDiff.OriginalValue, statusDiff.EditedValue = status, statusNull
	}
	diffs := []Difference{statusDiff}
	if value == "" {
		return diffs
	}

	textDiff := Difference{Name: name + textSuffix, EditedValue: value, ColorDifferences: color}
	if reverse {
		textDiff.OriginalValue, textDiff.EditedValue = value, ""
	}
	return append(diffs, textDiff)
}

// Edited reports whether any difference was found. It gates saving and the
// overwrite warning.
func Edited(diffs []Difference) bool {
	return len(diffs) > 0
}
