// Package sim is an in-memory scene tree for running scenekit without an
// engine.
//
// Application node types embed *Node and are added to a Tree. The tree
// implements host.Tree, host.Liveness and host.DestroyNotifier.
package sim

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/scenekit/internal/host"
)

var nextID atomic.Uint64

type nodeState int

const (
	stateDetached nodeState = iota
	stateInTree
	stateQueued
	stateFreed
)

// Node is the embeddable tree node.
type Node struct {
	id        uint64
	name      string
	groups    map[string]struct{}
	transform host.Transform

	self     host.Object
	parent   *Node
	children []*Node
	state    nodeState
	hooks    []func()
}

// NewNode creates a detached node. An empty name gets a generated one.
func NewNode(name string, groups ...string) *Node {
	if name == "" {
		name = "node-" + uuid.NewString()[:8]
	}
	n := &Node{
		id:     nextID.Add(1),
		name:   name,
		groups: make(map[string]struct{}, len(groups)),
	}
	for _, g := range groups {
		n.groups[g] = struct{}{}
	}
	return n
}

// ObjectID implements host.Object.
func (n *Node) ObjectID() uint64 { return n.id }

// ObjectName implements host.Object.
func (n *Node) ObjectName() string { return n.name }

// SimNode exposes the node to the tree when embedded.
func (n *Node) SimNode() *Node { return n }

// Rename changes the node's name.
func (n *Node) Rename(name string) { n.name = name }

// AddToGroup tags the node with a group marker.
func (n *Node) AddToGroup(group string) { n.groups[group] = struct{}{} }

// InGroup reports whether the node carries the group marker.
func (n *Node) InGroup(group string) bool {
	_, ok := n.groups[group]
	return ok
}

// Transform returns the node's local transform.
func (n *Node) Transform() host.Transform { return n.transform }

// Parent returns the parent's object, or nil at the root or when detached.
func (n *Node) Parent() host.Object {
	if n.parent == nil {
		return nil
	}
	return n.parent.self
}

// Children returns the child objects in insertion order.
func (n *Node) Children() []host.Object {
	out := make([]host.Object, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c.self)
	}
	return out
}

// Clone copies name, groups and transform into a new detached node.
func (n *Node) Clone() *Node {
	c := NewNode(n.name)
	for g := range n.groups {
		c.groups[g] = struct{}{}
	}
	c.transform = n.transform
	return c
}

// Duplicator is implemented by node types that Tree.Instantiate can copy.
type Duplicator interface {
	Duplicate() host.Object
}

type simObject interface {
	host.Object
	SimNode() *Node
}

func (n *Node) detach() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.children
	for i, c := range siblings {
		if c == n {
			n.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	n.parent = nil
}
