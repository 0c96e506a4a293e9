// Package workflow implements the directed processing tree executed once
// per detector frame: nodes wrap plugins, the tree owns the nodes and
// drives shape propagation and chain execution.
package workflow

import (
	"fmt"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
)

// NoParent is the parent id of the root node.
const NoParent = -1

// Node wraps one plugin instance in the workflow tree. It owns its children
// exclusively; the parent link is a non-owning id lookup.
type Node struct {
	id       int
	plugin   plugin.Plugin
	params   plugin.Params
	parentID int
	children []*Node

	resultShape core.Shape

	// Leaf output retained from the most recent chain execution.
	result   *core.Dataset
	resultKw plugin.Kwargs
}

// ID returns the node's tree-unique id.
func (n *Node) ID() int { return n.id }

// Plugin returns the plugin instance owned by this node.
func (n *Node) Plugin() plugin.Plugin { return n.plugin }

// Params returns the serialized parameters the plugin was built from, or
// nil if the node was constructed directly from an instance.
func (n *Node) Params() plugin.Params { return n.params }

// ParentID returns the id of the parent node, or NoParent for the root.
func (n *Node) ParentID() int { return n.parentID }

// Children returns the node's children in declared order. The returned
// slice must not be mutated.
func (n *Node) Children() []*Node { return n.children }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// ResultShape returns the cached result shape, or nil if shapes have not
// been propagated since the last topology or configuration change.
func (n *Node) ResultShape() core.Shape { return n.resultShape }

// Result returns the leaf output retained from the most recent chain
// execution, or nil for non-leaf nodes.
func (n *Node) Result() *core.Dataset { return n.result }

// prepareExecution calls the plugin's PreExecute and recurses into every
// child in order.
func (n *Node) prepareExecution() error {
	if err := n.plugin.PreExecute(); err != nil {
		return fmt.Errorf("node %d (%s): pre-execute: %w", n.id, n.plugin.Name(), err)
	}
	for _, c := range n.children {
		if err := c.prepareExecution(); err != nil {
			return err
		}
	}
	return nil
}

// executeChain runs the plugin on an independent copy of the input, then
// recurses into every child with the result. Copies are taken before each
// plugin call so sibling branches can never observe each other's
// mutations. Leaves retain their own output for later collection.
func (n *Node) executeChain(data *core.Dataset, kw plugin.Kwargs) error {
	res, resKw, err := n.plugin.Execute(data.Copy(), kw.Copy())
	if err != nil {
		return fmt.Errorf("node %d (%s): %w", n.id, n.plugin.Name(), err)
	}
	for _, c := range n.children {
		if err := c.executeChain(res, resKw); err != nil {
			return err
		}
	}
	if n.IsLeaf() {
		n.result = res
		n.resultKw = resKw
	}
	return nil
}

// propagateShapes resolves this node's result shape from the parent's
// resolved input shape, then recurses into the children.
func (n *Node) propagateShapes(input core.Shape) error {
	shape, err := n.plugin.CalculateResultShape(input)
	if err != nil {
		return fmt.Errorf("node %d (%s): result shape: %w", n.id, n.plugin.Name(), err)
	}
	n.resultShape = shape
	for _, c := range n.children {
		if err := c.propagateShapes(shape); err != nil {
			return err
		}
	}
	return nil
}

// invalidateShapes clears the cached shapes of this node and its subtree.
func (n *Node) invalidateShapes() {
	n.resultShape = nil
	for _, c := range n.children {
		c.invalidateShapes()
	}
}

// walk visits the node and its subtree in depth-first declared order.
func (n *Node) walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.children {
		c.walk(visit)
	}
}
