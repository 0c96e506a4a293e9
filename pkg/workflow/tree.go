package workflow

import (
	"fmt"
	"sort"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
)

// Tree owns the workflow nodes. It enforces the single-root invariant,
// assigns node ids monotonically, and tracks whether topology or
// configuration changed since shapes were last propagated.
type Tree struct {
	nodes      map[int]*Node
	rootID     int
	lastID     int // most recently inserted node, default parent
	nextID     int
	inputShape core.Shape
	dirty      bool
	prepared   bool
}

// NewTree creates an empty workflow tree.
func NewTree() *Tree {
	return &Tree{
		nodes:  make(map[int]*Node),
		rootID: NoParent,
		lastID: NoParent,
	}
}

// InsertOption modifies an Insert call.
type InsertOption func(*insertOpts)

type insertOpts struct {
	parentID int
	nodeID   int
	params   plugin.Params
}

// WithParent makes the new node a child of the node with the given id
// instead of the most recently inserted node.
func WithParent(id int) InsertOption {
	return func(o *insertOpts) { o.parentID = id }
}

// WithNodeID requests an explicit node id. Insert fails if the id is
// already in use.
func WithNodeID(id int) InsertOption {
	return func(o *insertOpts) { o.nodeID = id }
}

// WithParams records the serialized parameters the plugin was built from,
// so the tree can be exported and reconstructed.
func WithParams(p plugin.Params) InsertOption {
	return func(o *insertOpts) { o.params = p }
}

// Insert creates a node owning pl and adds it to the tree. If the tree is
// empty the node becomes the root; otherwise, without WithParent, the most
// recently inserted node becomes the parent. Returns the new node's id.
func (t *Tree) Insert(pl plugin.Plugin, opts ...InsertOption) (int, error) {
	if pl == nil {
		return 0, fmt.Errorf("cannot insert nil plugin")
	}
	o := insertOpts{parentID: NoParent, nodeID: NoParent}
	for _, opt := range opts {
		opt(&o)
	}

	id := o.nodeID
	if id == NoParent {
		id = t.nextID
	} else if _, ok := t.nodes[id]; ok {
		return 0, core.Configf("node id %d already in use", id)
	}

	node := &Node{id: id, plugin: pl, params: o.params, parentID: NoParent}

	if t.rootID == NoParent {
		t.rootID = id
	} else {
		parentID := o.parentID
		if parentID == NoParent {
			parentID = t.lastID
		}
		parent, ok := t.nodes[parentID]
		if !ok {
			return 0, core.Configf("parent node %d not in tree", parentID)
		}
		node.parentID = parentID
		parent.children = append(parent.children, node)
	}

	t.nodes[id] = node
	t.lastID = id
	if id >= t.nextID {
		t.nextID = id + 1
	}
	t.markChanged()
	return id, nil
}

// Node returns the node with the given id.
func (t *Tree) Node(id int) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, core.Configf("node id %d not in tree", id)
	}
	return n, nil
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	if t.rootID == NoParent {
		return nil
	}
	return t.nodes[t.rootID]
}

// NumNodes returns the number of nodes in the tree.
func (t *Tree) NumNodes() int { return len(t.nodes) }

// IDs returns all node ids in ascending order.
func (t *Tree) IDs() []int {
	out := make([]int, 0, len(t.nodes))
	for id := range t.nodes {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Leaves returns all leaf nodes in depth-first traversal order.
func (t *Tree) Leaves() []*Node {
	root := t.Root()
	if root == nil {
		return nil
	}
	var out []*Node
	root.walk(func(n *Node) {
		if n.IsLeaf() {
			out = append(out, n)
		}
	})
	return out
}

// Remove detaches the node with the given id together with its entire
// subtree and drops all of it from the registry. Removing the root empties
// the tree.
func (t *Tree) Remove(id int) error {
	node, ok := t.nodes[id]
	if !ok {
		return core.Configf("node id %d not in tree", id)
	}
	if node.parentID != NoParent {
		parent := t.nodes[node.parentID]
		for i, c := range parent.children {
			if c.id == id {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
	} else {
		t.rootID = NoParent
	}
	node.walk(func(n *Node) { delete(t.nodes, n.id) })
	if _, ok := t.nodes[t.lastID]; !ok {
		t.lastID = t.maxID()
	}
	t.markChanged()
	return nil
}

// Reparent moves the subtree rooted at id under a new parent. Moving a
// node into its own subtree would create a cycle and is rejected.
func (t *Tree) Reparent(id, newParentID int) error {
	node, ok := t.nodes[id]
	if !ok {
		return core.Configf("node id %d not in tree", id)
	}
	if node.parentID == NoParent {
		return core.Configf("cannot reparent the root node %d", id)
	}
	newParent, ok := t.nodes[newParentID]
	if !ok {
		return core.Configf("parent node %d not in tree", newParentID)
	}
	inSubtree := false
	node.walk(func(n *Node) {
		if n.id == newParentID {
			inSubtree = true
		}
	})
	if inSubtree {
		return core.Configf("cannot reparent node %d under its own descendant %d", id, newParentID)
	}

	oldParent := t.nodes[node.parentID]
	for i, c := range oldParent.children {
		if c.id == id {
			oldParent.children = append(oldParent.children[:i], oldParent.children[i+1:]...)
			break
		}
	}
	node.parentID = newParentID
	newParent.children = append(newParent.children, node)
	t.markChanged()
	return nil
}

// SetInputShape declares the shape of the data fed into the root node
// (typically the detector frame shape after cropping and binning).
func (t *Tree) SetInputShape(s core.Shape) {
	t.inputShape = s.Clone()
	t.markChanged()
}

// InputShape returns the declared root input shape, or nil.
func (t *Tree) InputShape() core.Shape { return t.inputShape }

// MarkChanged flags the tree as dirty after an external configuration
// change (e.g. a plugin parameter edit) that the tree cannot observe.
func (t *Tree) MarkChanged() { t.markChanged() }

// Dirty reports whether topology or configuration changed since the last
// successful shape propagation.
func (t *Tree) Dirty() bool { return t.dirty }

func (t *Tree) markChanged() {
	t.dirty = true
	t.prepared = false
	if root := t.Root(); root != nil {
		root.invalidateShapes()
	}
}

func (t *Tree) maxID() int {
	max := NoParent
	for id := range t.nodes {
		if id > max {
			max = id
		}
	}
	return max
}

// PropagateShapes walks the tree root to leaves, resolving and caching
// every node's result shape from its parent's. It is a no-op unless the
// tree is dirty or force is set, and is idempotent between changes.
func (t *Tree) PropagateShapes(force bool) error {
	if !t.dirty && !force {
		return nil
	}
	root := t.Root()
	if root == nil {
		return core.Configf("workflow tree has no nodes")
	}
	if err := root.propagateShapes(t.inputShape); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// LeafShapes returns the resolved result shape of every leaf, keyed by
// node id. Any wildcard dimension left after propagation is a
// configuration error naming the offending node.
func (t *Tree) LeafShapes() (map[int]core.Shape, error) {
	if err := t.PropagateShapes(false); err != nil {
		return nil, err
	}
	out := make(map[int]core.Shape)
	for _, leaf := range t.Leaves() {
		if leaf.resultShape == nil || !leaf.resultShape.Resolved() {
			return nil, core.Configf(
				"cannot determine the output shape of node %d (%s): got %v",
				leaf.id, leaf.plugin.Name(), leaf.resultShape)
		}
		out[leaf.id] = leaf.resultShape.Clone()
	}
	return out, nil
}

// PrepareExecution runs every node's PreExecute hook, root to leaves. It
// is called automatically before the first chain execution and must be
// repeated after configuration changes.
func (t *Tree) PrepareExecution() error {
	root := t.Root()
	if root == nil {
		return core.Configf("workflow tree has no nodes")
	}
	if err := root.prepareExecution(); err != nil {
		return err
	}
	t.prepared = true
	return nil
}

// RunSingle executes the full plugin chain for one frame and returns the
// retained output of every leaf, keyed by node id. kw may be nil.
func (t *Tree) RunSingle(frame int, data *core.Dataset, kw plugin.Kwargs) (map[int]*core.Dataset, error) {
	root := t.Root()
	if root == nil {
		return nil, core.Configf("workflow tree has no nodes")
	}
	if data == nil {
		return nil, fmt.Errorf("frame %d: no input data", frame)
	}
	if !t.prepared {
		if err := t.PrepareExecution(); err != nil {
			return nil, err
		}
	}
	if kw == nil {
		kw = plugin.Kwargs{}
	}
	kw["frame"] = frame
	if err := root.executeChain(data, kw); err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame, err)
	}
	out := make(map[int]*core.Dataset)
	for _, leaf := range t.Leaves() {
		if leaf.result != nil {
			out[leaf.id] = leaf.result
		}
	}
	return out, nil
}
