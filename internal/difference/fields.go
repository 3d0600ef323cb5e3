package difference

import (
	"strconv"

	"ladybug/internal/checkpoint"
)

var reportFields = []Field{
	{Key: "name", Label: "Name", Color: true},
	{Key: "description", Label: "Description", Nullable: true, Color: true},
	{Key: "path", Label: "Path", Nullable: true, Color: true},
	{Key: "transformation", Label: "Transformation", Nullable: true, Color: true},
	{Key: "stubStrategy", Label: "Stub strategy"},
}

var checkpointFields = []Field{
	{Key: "message", Label: "Message", Nullable: true, Color: true},
	{Key: "stub", Label: "Stub"},
}

// ReportFields is the editable part of a report.
type ReportFields struct {
	Name           string               `json:"name"`
	Description    *string              `json:"description"`
	Path           *string              `json:"path"`
	Transformation *string              `json:"transformation"`
	StubStrategy   string               `json:"stubStrategy"`
	Variables      checkpoint.Variables `json:"variables"`
}

// ReportFieldsOf copies the editable fields of r.
func ReportFieldsOf(r *checkpoint.Report) ReportFields {
	return ReportFields{
		Name:           r.Name,
		Description:    r.Description,
		Path:           r.Path,
		Transformation: r.Transformation,
		StubStrategy:   r.StubStrategy,
		Variables:      append(checkpoint.Variables(nil), r.Variables...),
	}
}

func (f ReportFields) record() Record {
	name, stub := f.Name, f.StubStrategy
	return Record{
		"name":           &name,
		"description":    f.Description,
		"path":           f.Path,
		"transformation": f.Transformation,
		"stubStrategy":   &stub,
	}
}

// CheckpointFields is the editable part of a checkpoint.
type CheckpointFields struct {
	Message *string `json:"message"`
	Stub    int     `json:"stub"`
}

// CheckpointFieldsOf copies the editable fields of c.
func CheckpointFieldsOf(c *checkpoint.Checkpoint) CheckpointFields {
	return CheckpointFields{Message: c.Message, Stub: c.Stub}
}

func (f CheckpointFields) record() Record {
	stub := strconv.Itoa(f.Stub)
	return Record{
		"message": f.Message,
		"stub":    &stub,
	}
}

// DiffReport lists the differences between two versions of a report,
// scalar fields first, then variables.
func DiffReport(original, edited ReportFields) []Difference {
	// Records built from the struct always carry every field.
	diffs, _ := Compare(original.record(), edited.record(), reportFields)
	return append(diffs, VariableDiff(original.Variables, edited.Variables)...)
}

// DiffCheckpoint lists the differences between two versions of a
// checkpoint.
func DiffCheckpoint(original, edited CheckpointFields) []Difference {
	diffs, _ := Compare(original.record(), edited.record(), checkpointFields)
	return diffs
}

// Update is a persistence payload holding only changed fields. A nil value
// sets the field to null.
type Update map[string]any

func changedFields(original, edited Record, fields []Field, update Update) {
	for _, f := range fields {
		a, b := original[f.Key], edited[f.Key]
		if len(f.diff(a, b)) == 0 {
			continue
		}
		if b == nil {
			update[f.Key] = nil
		} else {
			update[f.Key] = *b
		}
	}
}

// NewReportUpdate returns the fields of edited that DiffReport reports as
// changed, keyed like the capture format, plus the storage id. It returns
// nil when nothing changed.
func NewReportUpdate(storageID int, original, edited ReportFields) Update {
	update := Update{}
	changedFields(original.record(), edited.record(), reportFields, update)
	if len(VariableDiff(original.Variables, edited.Variables)) > 0 {
		update["variables"] = TrimPlaceholders(edited.Variables)
	}
	if len(update) == 0 {
		return nil
	}
	update["storageId"] = storageID
	return update
}

// NewCheckpointUpdate is NewReportUpdate for one checkpoint, identified by
// its uid.
func NewCheckpointUpdate(uid string, original, edited CheckpointFields) Update {
	update := Update{}
	changedFields(original.record(), edited.record(), checkpointFields, update)
	if len(update) == 0 {
		return nil
	}
	if _, ok := update["stub"]; ok {
		update["stub"] = edited.Stub
	}
	update["uid"] = uid
	return update
}
