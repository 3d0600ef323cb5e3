// internal/checkpoint/models.go
package checkpoint

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Type is the kind of a recorded checkpoint. Values match the codes written
// by the capturing engine.
type Type int

const (
	Startpoint            Type = 1
	Endpoint              Type = 2
	Abortpoint            Type = 3
	Inputpoint            Type = 4
	Outputpoint           Type = 5
	Infopoint             Type = 6
	ThreadStartpointError Type = 7
	ThreadStartpoint      Type = 8
	ThreadEndpoint        Type = 9
)

var typeNames = map[Type]string{
	Startpoint:            "Startpoint",
	Endpoint:              "Endpoint",
	Abortpoint:            "Abortpoint",
	Inputpoint:            "Inputpoint",
	Outputpoint:           "Outputpoint",
	Infopoint:             "Infopoint",
	ThreadStartpointError: "ThreadStartpointError",
	ThreadStartpoint:      "ThreadStartpoint",
	ThreadEndpoint:        "ThreadEndpoint",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Opens reports whether the type starts a nested block.
func (t Type) Opens() bool {
	switch t {
	case Startpoint, ThreadStartpoint:
		return true
	case Endpoint, Abortpoint, ThreadEndpoint,
		Inputpoint, Outputpoint, Infopoint, ThreadStartpointError:
		return false
	default:
		return false
	}
}

// Closes reports whether the type ends the innermost open block.
func (t Type) Closes() bool {
	switch t {
	case Endpoint, Abortpoint, ThreadEndpoint:
		return true
	case Startpoint, ThreadStartpoint,
		Inputpoint, Outputpoint, Infopoint, ThreadStartpointError:
		return false
	default:
		return false
	}
}

// ParseType accepts a numeric code or a type name in any of the spellings
// found in captures (Startpoint, THREAD_STARTPOINT, thread-startpoint).
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return Type(n), nil
	}
	normalized := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	for t, name := range typeNames {
		if strings.ToLower(name) == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown checkpoint type %q", s)
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(t))
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Type(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("checkpoint type: %w", err)
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *Type) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := ParseType(node.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// StubFollowReport means the checkpoint uses the report's stub strategy.
const StubFollowReport = -1

// Checkpoint is one recorded step of a report. Captures deliver checkpoints
// flat; Checkpoints is only populated by BuildTree and never serialized.
type Checkpoint struct {
	Index                     int           `json:"index" yaml:"index"`
	Level                     int           `json:"level" yaml:"level"`
	Type                      Type          `json:"type" yaml:"type"`
	Name                      string        `json:"name" yaml:"name"`
	ThreadName                string        `json:"threadName,omitempty" yaml:"threadName,omitempty"`
	SourceClassName           string        `json:"sourceClassName,omitempty" yaml:"sourceClassName,omitempty"`
	MessageClassName          string        `json:"messageClassName,omitempty" yaml:"messageClassName,omitempty"`
	Message                   *string       `json:"message" yaml:"message"`
	Encoding                  string        `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Stub                      int           `json:"stub" yaml:"stub"`
	PreTruncatedMessageLength int           `json:"preTruncatedMessageLength,omitempty" yaml:"preTruncatedMessageLength,omitempty"`
	Checkpoints               []*Checkpoint `json:"-" yaml:"-"`

	report *Report
}

// checkpointFields decodes a Checkpoint without its custom unmarshalers.
type checkpointFields Checkpoint

// UnmarshalJSON decodes a checkpoint; a missing stub follows the report.
func (c *Checkpoint) UnmarshalJSON(data []byte) error {
	fields := checkpointFields{Stub: StubFollowReport}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*c = Checkpoint(fields)
	return nil
}

func (c *Checkpoint) UnmarshalYAML(node *yaml.Node) error {
	fields := checkpointFields{Stub: StubFollowReport}
	if err := node.Decode(&fields); err != nil {
		return err
	}
	*c = Checkpoint(fields)
	return nil
}

// Report returns the report the checkpoint belongs to, or nil when the
// checkpoint was built outside a report.
func (c *Checkpoint) Report() *Report {
	return c.report
}

// IsLeaf reports whether the node has no children list.
func (c *Checkpoint) IsLeaf() bool {
	return c.Checkpoints == nil
}

// Report is the trace of one processing run.
type Report struct {
	StorageName          string        `json:"storageName" yaml:"storageName"`
	StorageID            int           `json:"storageId" yaml:"storageId"`
	Name                 string        `json:"name" yaml:"name"`
	Description          *string       `json:"description" yaml:"description"`
	Path                 *string       `json:"path" yaml:"path"`
	Transformation       *string       `json:"transformation" yaml:"transformation"`
	StubStrategy         string        `json:"stubStrategy" yaml:"stubStrategy"`
	Variables            Variables     `json:"variables" yaml:"variables"`
	EndTime              time.Time     `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	EstimatedMemoryUsage int64         `json:"estimatedMemoryUsage,omitempty" yaml:"estimatedMemoryUsage,omitempty"`
	Checkpoints          []*Checkpoint `json:"checkpoints" yaml:"checkpoints"`
}

// clone copies the report and its checkpoint records so that a rendered tree
// owns the payloads it nests.
func (r *Report) clone() *Report {
	c := *r
	c.Variables = append(Variables(nil), r.Variables...)
	c.Checkpoints = make([]*Checkpoint, 0, len(r.Checkpoints))
	for _, cp := range r.Checkpoints {
		if cp == nil {
			continue
		}
		copied := *cp
		copied.Checkpoints = nil
		copied.report = &c
		c.Checkpoints = append(c.Checkpoints, &copied)
	}
	return &c
}

// Variable is one entry of a report's variable map.
type Variable struct {
	Key   string
	Value string
}

// Variables is a key/value map whose key order is significant.
type Variables []Variable

// Keys returns the keys in order.
func (v Variables) Keys() []string {
	keys := make([]string, len(v))
	for i, e := range v {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value for key.
func (v Variables) Get(key string) (string, bool) {
	for _, e := range v {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Duplicates returns keys that occur more than once, in first-seen order.
func (v Variables) Duplicates() []string {
	seen := make(map[string]int, len(v))
	var dups []string
	for _, e := range v {
		seen[e.Key]++
		if seen[e.Key] == 2 {
			dups = append(dups, e.Key)
		}
	}
	return dups
}

func (v Variables) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the document.
func (v *Variables) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = nil
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("variables: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("variables: expected object, got %v", tok)
	}
	vars := Variables{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("variables: %w", err)
		}
		key, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("variables: value of %q: %w", key, err)
		}
		vars = append(vars, Variable{Key: key, Value: value})
	}
	*v = vars
	return nil
}

// UnmarshalYAML decodes a YAML mapping keeping the key order of the document.
// A null value decodes as "", matching the JSON decoding.
func (v *Variables) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("variables: expected mapping at line %d", node.Line)
	}
	vars := make(Variables, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if value.Kind == yaml.AliasNode {
			value = value.Alias
		}
		if value.Kind != yaml.ScalarNode {
			return fmt.Errorf("variables: value of %q at line %d is not a scalar", key.Value, value.Line)
		}
		text := value.Value
		if value.Tag == "!!null" {
			text = ""
		}
		vars = append(vars, Variable{Key: key.Value, Value: text})
	}
	*v = vars
	return nil
}
