package checkpoint

import (
	"fmt"
	"strings"
)

// Strategy decides which node of the other tree corresponds to a selection
// in a compare view.
type Strategy int

const (
	// StrategyPath matches nodes with the same child positions from the
	// root. Use it for two renders of the same unmodified report.
	StrategyPath Strategy = iota
	// StrategyCheckpointNumber matches nodes by checkpoint index. Use it
	// for an original report against a rerun with a different shape.
	StrategyCheckpointNumber
)

func (s Strategy) String() string {
	switch s {
	case StrategyPath:
		return "path"
	case StrategyCheckpointNumber:
		return "checkpoint_number"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy parses "path" or "checkpoint_number".
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "path", "":
		return StrategyPath, nil
	case "checkpoint_number", "checkpoint-number", "checkpointnumber":
		return StrategyCheckpointNumber, nil
	default:
		return 0, fmt.Errorf("unknown compare strategy %q", s)
	}
}

// LinkCorresponding returns the node in target that corresponds to the
// node uid of source. The boolean is false when there is no such node;
// callers then leave the target selection as it is.
func LinkCorresponding(source *Tree, uid string, target *Tree, strategy Strategy) (*Node, bool) {
	switch strategy {
	case StrategyPath:
		path := source.Path(uid)
		if path == nil {
			return nil, false
		}
		n := target.NodeAt(path)
		return n, n != nil
	case StrategyCheckpointNumber:
		return linkByCheckpointNumber(source, uid, target)
	default:
		return nil, false
	}
}

func linkByCheckpointNumber(source *Tree, uid string, target *Tree) (*Node, bool) {
	src := source.Find(uid)
	if src == nil {
		return nil, false
	}
	if _, isReport := src.Report(); isReport {
		if len(target.Reports) == 0 {
			return nil, false
		}
		return target.Reports[0], true
	}
	_, index, err := ParseUID(src.UID)
	if err != nil {
		return nil, false
	}

	var found *Node
	for _, root := range target.Reports {
		walkNodes(root.Children, func(n *Node) bool {
			if _, i, err := ParseUID(n.UID); err == nil && i == index {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// Compare pairs two independently owned trees with linked selection.
type Compare struct {
	Left     *Tree
	Right    *Tree
	Strategy Strategy
}

// NewCompare renders the two reports into separate trees.
func NewCompare(left, right *Report, strategy Strategy) *Compare {
	return &Compare{
		Left:     NewTree(left),
		Right:    NewTree(right),
		Strategy: strategy,
	}
}

// SelectLeft selects uid in the left tree and moves the right selection to
// the corresponding node when one exists. It returns the linked node or nil.
func (c *Compare) SelectLeft(uid string) (*Node, error) {
	return selectLinked(c.Left, c.Right, uid, c.Strategy)
}

// SelectRight is SelectLeft with the sides swapped.
func (c *Compare) SelectRight(uid string) (*Node, error) {
	return selectLinked(c.Right, c.Left, uid, c.Strategy)
}

func selectLinked(source, target *Tree, uid string, strategy Strategy) (*Node, error) {
	if _, err := source.Select(uid); err != nil {
		return nil, err
	}
	linked, ok := LinkCorresponding(source, uid, target, strategy)
	if !ok {
		return nil, nil
	}
	target.selected = linked
	return linked, nil
}
