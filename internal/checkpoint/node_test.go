package checkpoint

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_JSONPayloadsAreFlat(t *testing.T) {
	var kinds []Type
	for depth := 0; depth < 20; depth++ {
		kinds = append(kinds, Startpoint, Infopoint)
	}
	for depth := 0; depth < 20; depth++ {
		kinds = append(kinds, Endpoint)
	}
	r := newReport(4, kinds...)
	tree := NewTree(r)

	out, err := json.Marshal(tree)
	require.NoError(t, err)

	// Once in the report payload, once in the node's own payload.
	assert.Equal(t, 2*len(kinds), strings.Count(string(out), `"index":`))

	var decoded struct {
		Reports []struct {
			Value struct {
				Checkpoints []map[string]any `json:"checkpoints"`
			} `json:"originalValue"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Reports, 1)
	require.Len(t, decoded.Reports[0].Value.Checkpoints, len(kinds))
	for i, c := range decoded.Reports[0].Value.Checkpoints {
		assert.EqualValues(t, i, c["index"])
		assert.NotContains(t, c, "checkpoints")
	}
}

func TestNewTree_OwnsPayloads(t *testing.T) {
	r := newReport(3, Startpoint, Infopoint, Endpoint)
	r.Variables = Variables{{Key: "k", Value: "v"}}

	left := NewTree(r)
	right := NewTree(r)

	leftReport, ok := left.Reports[0].Report()
	require.True(t, ok)
	rightReport, ok := right.Reports[0].Report()
	require.True(t, ok)
	assert.NotSame(t, r, leftReport)
	assert.NotSame(t, leftReport, rightReport)
	assert.Equal(t, r.Variables, leftReport.Variables)

	leftCp, ok := left.Find("3#1").Checkpoint()
	require.True(t, ok)
	rightCp, ok := right.Find("3#1").Checkpoint()
	require.True(t, ok)
	assert.NotSame(t, leftCp, rightCp)
	assert.Same(t, leftReport, leftCp.Report())

	// The caller's records stay flat.
	for _, c := range r.Checkpoints {
		assert.True(t, c.IsLeaf())
	}
}
