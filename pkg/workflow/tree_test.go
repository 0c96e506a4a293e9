package workflow_test

import (
	"testing"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
	"github.com/avanrossum/diffract/pkg/workflow"
)

// ─── Insertion and topology ───────────────────────────────────────────────────

func TestTree_Insert_FirstNodeBecomesRoot(t *testing.T) {
	tr := workflow.NewTree()
	id, err := tr.Insert(&plugin.KeepData{})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if tr.Root() == nil || tr.Root().ID() != id {
		t.Errorf("root id = %v, want %d", tr.Root(), id)
	}
	if tr.Root().ParentID() != workflow.NoParent {
		t.Errorf("root parent = %d, want NoParent", tr.Root().ParentID())
	}
}

func TestTree_Insert_DefaultParentIsLatest(t *testing.T) {
	tr := workflow.NewTree()
	a, _ := tr.Insert(&plugin.KeepData{})
	b, _ := tr.Insert(&plugin.Scale{Factor: 2})
	c, _ := tr.Insert(&plugin.Scale{Factor: 3})

	nb, _ := tr.Node(b)
	nc, _ := tr.Node(c)
	if nb.ParentID() != a {
		t.Errorf("node %d parent = %d, want %d", b, nb.ParentID(), a)
	}
	if nc.ParentID() != b {
		t.Errorf("node %d parent = %d, want %d", c, nc.ParentID(), b)
	}
}

func TestTree_Insert_WithParent(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	tr.Insert(&plugin.Scale{Factor: 2})
	c, err := tr.Insert(&plugin.Scale{Factor: 3}, workflow.WithParent(root))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	nc, _ := tr.Node(c)
	if nc.ParentID() != root {
		t.Errorf("parent = %d, want %d", nc.ParentID(), root)
	}
	if len(tr.Root().Children()) != 2 {
		t.Errorf("root children = %d, want 2", len(tr.Root().Children()))
	}
}

func TestTree_Insert_DuplicateID(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{}, workflow.WithNodeID(4))
	_, err := tr.Insert(&plugin.KeepData{}, workflow.WithNodeID(4))
	if err == nil {
		t.Fatal("expected error for duplicate node id")
	}
	if !core.IsConfigError(err) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestTree_Insert_UnknownParent(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	if _, err := tr.Insert(&plugin.KeepData{}, workflow.WithParent(99)); err == nil {
		t.Error("expected error for unknown parent id")
	}
}

func TestTree_Remove_Subtree(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	mid, _ := tr.Insert(&plugin.Scale{Factor: 2})
	tr.Insert(&plugin.Scale{Factor: 3})

	if err := tr.Remove(mid); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tr.NumNodes() != 1 {
		t.Errorf("nodes after remove = %d, want 1", tr.NumNodes())
	}
	if tr.Root().ID() != root {
		t.Errorf("root = %d, want %d", tr.Root().ID(), root)
	}
	// The latest-node default parent must fall back to a surviving node.
	if _, err := tr.Insert(&plugin.Scale{Factor: 4}); err != nil {
		t.Fatalf("Insert after Remove: %v", err)
	}
}

func TestTree_Remove_RootEmptiesTree(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	tr.Insert(&plugin.Scale{Factor: 2})
	if err := tr.Remove(root); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if tr.NumNodes() != 0 || tr.Root() != nil {
		t.Errorf("tree not empty after removing the root: %d nodes", tr.NumNodes())
	}
}

func TestTree_Reparent(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	a, _ := tr.Insert(&plugin.Scale{Factor: 2})
	b, _ := tr.Insert(&plugin.Scale{Factor: 3}, workflow.WithParent(root))

	if err := tr.Reparent(b, a); err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	nb, _ := tr.Node(b)
	if nb.ParentID() != a {
		t.Errorf("parent after reparent = %d, want %d", nb.ParentID(), a)
	}
}

func TestTree_Reparent_RejectsCycle(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	a, _ := tr.Insert(&plugin.Scale{Factor: 2})
	b, _ := tr.Insert(&plugin.Scale{Factor: 3})
	if err := tr.Reparent(a, b); err == nil {
		t.Error("expected error when moving a node under its own descendant")
	}
}

// ─── Shape propagation ────────────────────────────────────────────────────────

func TestTree_PropagateShapes(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	crop, _ := plugin.NewCrop(plugin.Params{"y0": "0", "y1": "4", "x0": "0", "x1": "6"})
	leaf, _ := tr.Insert(crop)

	tr.SetInputShape(core.Shape{10, 10})
	shapes, err := tr.LeafShapes()
	if err != nil {
		t.Fatalf("LeafShapes: %v", err)
	}
	if !shapes[leaf].Equal(core.Shape{4, 6}) {
		t.Errorf("leaf shape = %v, want (4, 6)", shapes[leaf])
	}
}

func TestTree_PropagateShapes_DirtyTracking(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	tr.SetInputShape(core.Shape{4, 4})
	if !tr.Dirty() {
		t.Fatal("tree should be dirty after construction")
	}
	if err := tr.PropagateShapes(false); err != nil {
		t.Fatalf("PropagateShapes: %v", err)
	}
	if tr.Dirty() {
		t.Error("tree still dirty after propagation")
	}
	// Idempotent until something changes.
	if err := tr.PropagateShapes(false); err != nil {
		t.Fatalf("second PropagateShapes: %v", err)
	}
	tr.MarkChanged()
	if !tr.Dirty() {
		t.Error("MarkChanged did not flag the tree")
	}
	if tr.Root().ResultShape() != nil {
		t.Error("cached shapes survived MarkChanged")
	}
}

func TestTree_LeafShapes_UnresolvedIsError(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	// No input shape declared: the leaf shape stays a wildcard.
	_, err := tr.LeafShapes()
	if err == nil {
		t.Fatal("expected error for unresolved leaf shape")
	}
	if !core.IsConfigError(err) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

// ─── Chain execution ──────────────────────────────────────────────────────────

func TestTree_RunSingle_DoublingChain(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.KeepData{})
	tr.Insert(&plugin.Scale{Factor: 2})
	leaf, _ := tr.Insert(&plugin.Scale{Factor: 2})

	out, err := tr.RunSingle(0, core.Scalar(5), nil)
	if err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	res, ok := out[leaf]
	if !ok {
		t.Fatalf("no result for leaf %d; got %v", leaf, out)
	}
	if got := res.At(); got != 20 {
		t.Errorf("chain result = %v, want 20", got)
	}
}

func TestTree_RunSingle_SiblingIsolation(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	a, _ := tr.Insert(&plugin.Scale{Factor: 2}, workflow.WithParent(root))
	b, _ := tr.Insert(&plugin.Scale{Factor: 3}, workflow.WithParent(root))

	out, err := tr.RunSingle(0, core.Scalar(5), nil)
	if err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	// Scale mutates its input in place; each branch must see a private copy.
	if out[a].At() != 10 {
		t.Errorf("leaf %d = %v, want 10", a, out[a].At())
	}
	if out[b].At() != 15 {
		t.Errorf("leaf %d = %v, want 15", b, out[b].At())
	}
}

func TestTree_RunSingle_InputUntouched(t *testing.T) {
	tr := workflow.NewTree()
	tr.Insert(&plugin.Scale{Factor: 2})
	in := core.Scalar(5)
	if _, err := tr.RunSingle(0, in, nil); err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	if in.At() != 5 {
		t.Errorf("input mutated to %v", in.At())
	}
}

func TestTree_RunSingle_OnlyLeavesRetainResults(t *testing.T) {
	tr := workflow.NewTree()
	root, _ := tr.Insert(&plugin.KeepData{})
	leaf, _ := tr.Insert(&plugin.Scale{Factor: 2})

	out, err := tr.RunSingle(3, core.Scalar(1), nil)
	if err != nil {
		t.Fatalf("RunSingle: %v", err)
	}
	if _, ok := out[root]; ok {
		t.Error("non-leaf node retained a result")
	}
	if _, ok := out[leaf]; !ok {
		t.Error("leaf result missing")
	}
}

func TestTree_RunSingle_EmptyTree(t *testing.T) {
	if _, err := workflow.NewTree().RunSingle(0, core.Scalar(1), nil); err == nil {
		t.Error("expected error for empty tree")
	}
}
