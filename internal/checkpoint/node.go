package checkpoint

import (
	"errors"
	"fmt"
)

// ErrNodeNotFound is returned when an identity does not resolve to a node.
var ErrNodeNotFound = errors.New("node not found")

// Node is the shape handed to the tree widget: a label, ordered children and
// the original record (*Report or *Checkpoint) for round-tripping.
type Node struct {
	UID      string  `json:"uid"`
	Label    string  `json:"label"`
	Class    string  `json:"class,omitempty"`
	Value    any     `json:"originalValue"`
	Children []*Node `json:"children,omitempty"`
	Expanded bool    `json:"expanded"`
}

// Report returns the payload when the node is a report node.
func (n *Node) Report() (*Report, bool) {
	r, ok := n.Value.(*Report)
	return r, ok
}

// Checkpoint returns the payload when the node is a checkpoint node.
func (n *Node) Checkpoint() (*Checkpoint, bool) {
	c, ok := n.Value.(*Checkpoint)
	return c, ok
}

// Tree is a rendered forest of report nodes with a single selection.
// A Tree is not safe for concurrent use.
type Tree struct {
	Reports  []*Node `json:"reports"`
	selected *Node
}

// NewTree builds one report node per report.
func NewTree(reports ...*Report) *Tree {
	t := &Tree{}
	for _, r := range reports {
		t.Reports = append(t.Reports, newReportNode(r))
	}
	return t
}

func newReportNode(r *Report) *Node {
	n, _ := buildReportNode(r)
	return n
}

// buildReportNode renders a private copy of r, so trees never share
// checkpoint records with each other or with the caller.
func buildReportNode(r *Report) (*Node, BuildStats) {
	r = r.clone()
	roots, stats := r.TreeStats()
	n := &Node{
		UID:      r.UID(),
		Label:    r.Name,
		Class:    "report",
		Value:    r,
		Expanded: true,
	}
	for _, c := range roots {
		n.Children = append(n.Children, newCheckpointNode(c))
	}
	return n, stats
}

func newCheckpointNode(c *Checkpoint) *Node {
	n := &Node{
		UID:      c.UID(),
		Label:    c.Name,
		Class:    c.PresentationClass(),
		Value:    c,
		Expanded: len(c.Checkpoints) > 0,
	}
	for _, child := range c.Checkpoints {
		n.Children = append(n.Children, newCheckpointNode(child))
	}
	return n
}

// Walk visits every node depth-first in pre-order until fn returns false.
func (t *Tree) Walk(fn func(n *Node) bool) {
	walkNodes(t.Reports, fn)
}

func walkNodes(nodes []*Node, fn func(n *Node) bool) bool {
	for _, n := range nodes {
		if !fn(n) {
			return false
		}
		if !walkNodes(n.Children, fn) {
			return false
		}
	}
	return true
}

// Find returns the node with the given identity.
func (t *Tree) Find(uid string) *Node {
	var found *Node
	t.Walk(func(n *Node) bool {
		if n.UID == uid {
			found = n
			return false
		}
		return true
	})
	return found
}

// Path returns the child positions leading from the forest to the node,
// starting with the report position. It returns nil when uid is unknown.
func (t *Tree) Path(uid string) []int {
	var find func(nodes []*Node, prefix []int) []int
	find = func(nodes []*Node, prefix []int) []int {
		for i, n := range nodes {
			path := append(append([]int(nil), prefix...), i)
			if n.UID == uid {
				return path
			}
			if p := find(n.Children, path); p != nil {
				return p
			}
		}
		return nil
	}
	return find(t.Reports, nil)
}

// NodeAt resolves a path produced by Path.
func (t *Tree) NodeAt(path []int) *Node {
	if len(path) == 0 {
		return nil
	}
	nodes := t.Reports
	var n *Node
	for _, i := range path {
		if i < 0 || i >= len(nodes) {
			return nil
		}
		n = nodes[i]
		nodes = n.Children
	}
	return n
}

// Select makes the node with the given identity the selection.
func (t *Tree) Select(uid string) (*Node, error) {
	n := t.Find(uid)
	if n == nil {
		return nil, fmt.Errorf("select %q: %w", uid, ErrNodeNotFound)
	}
	t.selected = n
	return n, nil
}

// Selected returns the selected node, or nil.
func (t *Tree) Selected() *Node {
	return t.selected
}

// SetExpanded records the expand state of a node.
func (t *Tree) SetExpanded(uid string, expanded bool) error {
	n := t.Find(uid)
	if n == nil {
		return fmt.Errorf("expand %q: %w", uid, ErrNodeNotFound)
	}
	n.Expanded = expanded
	return nil
}

func (t *Tree) reportPosition(storageID int) int {
	for i, n := range t.Reports {
		if r, ok := n.Report(); ok && r.StorageID == storageID {
			return i
		}
	}
	return -1
}
