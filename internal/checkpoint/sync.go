package checkpoint

// ReplaceOrInsert rebuilds the subtree of one report from its freshly
// fetched flat checkpoint list and puts it where the node with the same
// storage id was, or appends it when the report is new. Other report nodes
// are left untouched.
//
// Expand state of the refreshed subtree is carried over by identity. The
// selection is kept when its identity still exists; otherwise the rebuilt
// report's first child is selected, falling back to the report node.
func ReplaceOrInsert(t *Tree, r *Report) *Node {
	fresh := newReportNode(r)
	t.install(fresh, r.StorageID)
	return fresh
}

// install splices a prebuilt report node into the tree. Building the node
// does not touch the tree, so callers may build outside their tree lock.
func (t *Tree) install(fresh *Node, storageID int) {
	var previous string
	if t.selected != nil {
		previous = t.selected.UID
	}

	if pos := t.reportPosition(storageID); pos >= 0 {
		carryExpanded(t.Reports[pos], fresh)
		t.Reports[pos] = fresh
	} else {
		t.Reports = append(t.Reports, fresh)
	}

	if previous != "" {
		if n := t.Find(previous); n != nil {
			t.selected = n
			return
		}
	}
	if len(fresh.Children) > 0 {
		t.selected = fresh.Children[0]
	} else {
		t.selected = fresh
	}
}

func carryExpanded(old, fresh *Node) {
	expanded := make(map[string]bool)
	walkNodes([]*Node{old}, func(n *Node) bool {
		expanded[n.UID] = n.Expanded
		return true
	})
	walkNodes([]*Node{fresh}, func(n *Node) bool {
		if e, ok := expanded[n.UID]; ok {
			n.Expanded = e
		}
		return true
	})
}
