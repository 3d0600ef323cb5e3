package difference

import (
	"strings"

	"ladybug/internal/checkpoint"
)

const (
	orderedVariablesLabel = "Defined variables (ordered)"
	variableLabelPrefix   = "Variable "
)

// VariableDiff compares two ordered variable maps. The key lists are
// compared as one newline-joined value, so additions, removals and pure
// reordering show up as a single difference. Values are compared per key
// for keys present on both sides.
//
// Placeholder rows (blank key and value) at the end of edited are ignored.
// Keys are assumed unique; see checkpoint.Variables.Duplicates.
func VariableDiff(original, edited checkpoint.Variables) []Difference {
	edited = TrimPlaceholders(edited)

	diffs := Text(orderedVariablesLabel,
		strings.Join(original.Keys(), "\n"),
		strings.Join(edited.Keys(), "\n"),
		true)

	for _, v := range original {
		editedValue, ok := edited.Get(v.Key)
		if !ok {
			continue
		}
		diffs = append(diffs, Text(variableLabelPrefix+v.Key, v.Value, editedValue, true)...)
	}
	return diffs
}

// TrimPlaceholders drops trailing entries whose key and value are blank.
func TrimPlaceholders(vars checkpoint.Variables) checkpoint.Variables {
	end := len(vars)
	for end > 0 && isBlank(vars[end-1].Key) && isBlank(vars[end-1].Value) {
		end--
	}
	return vars[:end]
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
