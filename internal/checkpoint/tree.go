package checkpoint

import "strings"

// BuildStats describes how a flat list was nested.
type BuildStats struct {
	Roots int
	// Orphans counts closing points that found no open block and were
	// promoted to root level.
	Orphans int
	// Unclosed counts blocks still open at the end of the list.
	Unclosed int
}

// BuildTree nests a flat, index-ordered checkpoint list and returns the root
// nodes. The checkpoint type decides the structure; Level is never consulted.
//
// A closing point is appended as the last child of the block it closes. A
// closing point with no open block becomes a root.
func BuildTree(flat []*Checkpoint) []*Checkpoint {
	roots, _ := buildTree(flat, nil)
	return roots
}

// BuildTreeStats is BuildTree plus statistics about malformed input.
func BuildTreeStats(flat []*Checkpoint) ([]*Checkpoint, BuildStats) {
	return buildTree(flat, nil)
}

func buildTree(flat []*Checkpoint, report *Report) ([]*Checkpoint, BuildStats) {
	var (
		roots []*Checkpoint
		open  []*Checkpoint
		stats BuildStats
	)

	attach := func(c *Checkpoint) {
		if len(open) == 0 {
			roots = append(roots, c)
			return
		}
		parent := open[len(open)-1]
		parent.Checkpoints = append(parent.Checkpoints, c)
	}

	for _, c := range flat {
		c.Checkpoints = nil
		if report != nil {
			c.report = report
		}

		switch {
		case c.Type.Opens():
			attach(c)
			open = append(open, c)
		case c.Type.Closes():
			if len(open) == 0 {
				stats.Orphans++
				roots = append(roots, c)
				continue
			}
			parent := open[len(open)-1]
			open = open[:len(open)-1]
			parent.Checkpoints = append(parent.Checkpoints, c)
		default:
			attach(c)
		}
	}

	stats.Roots = len(roots)
	stats.Unclosed = len(open)
	return roots, stats
}

// Tree nests the report's flat checkpoint list and links every checkpoint
// back to the report.
func (r *Report) Tree() []*Checkpoint {
	roots, _ := buildTree(r.Checkpoints, r)
	return roots
}

// TreeStats is Tree plus build statistics.
func (r *Report) TreeStats() ([]*Checkpoint, BuildStats) {
	return buildTree(r.Checkpoints, r)
}

// Walk visits the nodes depth-first in pre-order. parent is nil for roots.
// Returning false from fn stops the walk.
func Walk(roots []*Checkpoint, fn func(c, parent *Checkpoint) bool) {
	var visit func(nodes []*Checkpoint, parent *Checkpoint) bool
	visit = func(nodes []*Checkpoint, parent *Checkpoint) bool {
		for _, c := range nodes {
			if !fn(c, parent) {
				return false
			}
			if !visit(c.Checkpoints, c) {
				return false
			}
		}
		return true
	}
	visit(roots, nil)
}

// Flatten returns the pre-order sequence of the tree.
func Flatten(roots []*Checkpoint) []*Checkpoint {
	var flat []*Checkpoint
	Walk(roots, func(c, _ *Checkpoint) bool {
		flat = append(flat, c)
		return true
	})
	return flat
}

const exceptionEncoding = "exception"

// PresentationClass returns the display class of the node: the type slug,
// an "error" token for failures, and the level parity for alternating rows.
func (c *Checkpoint) PresentationClass() string {
	classes := []string{typeSlug(c.Type)}
	if c.Type == Abortpoint || c.Type == ThreadStartpointError ||
		strings.Contains(strings.ToLower(c.Encoding), exceptionEncoding) {
		classes = append(classes, "error")
	}
	if c.Level%2 == 0 {
		classes = append(classes, "level-even")
	} else {
		classes = append(classes, "level-odd")
	}
	return strings.Join(classes, " ")
}

func typeSlug(t Type) string {
	name, ok := typeNames[t]
	if !ok {
		return "unknown"
	}
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
