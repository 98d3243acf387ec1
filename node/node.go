// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package node provides the elements of the scene graph.
package node

import (
	"gviegas/rend3/linear"
)

// Node represents a single node in a scene graph.
// Nodes have at most one immediate ancestor and
// an arbitrary number of immediate descendants.
type Node struct {
	next *Node
	prev *Node
	sub  *Node

	world linear.M4

	// Name for the node.
	// It is not used by node code.
	Name string

	// Local is the transform relative to the
	// immediate ancestor.
	Local linear.M4

	// Value is the payload of the node (e.g., a
	// drawable or a light).
	// It is not used by node code.
	Value any
}

// New creates an initialized node.
func New() *Node { return new(Node).Init() }

// Init initializes node n.
// Both the local and world transforms are set to
// identity.
func (n *Node) Init() *Node {
	n.Local.I()
	n.world.I()
	return n
}

// Insert inserts node sub as immediate descendant
// of node n.
// sub must be either a descendant of n or part of
// an unrelated graph - it must not be an ancestor
// of node n.
func (n *Node) Insert(sub *Node) {
	sub.Remove()
	sub.next = n.sub
	sub.prev = n
	if n.sub != nil {
		n.sub.prev = sub
	}
	n.sub = sub
}

// Remove removes node n from its immediate ancestor.
func (n *Node) Remove() {
	// Note that Node.prev is only nil when the node
	// has no ancestors, since the prev field of the
	// first immediate descendant is set to refer to
	// its immediate ancestor.
	if n.prev != nil {
		if n.prev.sub == n {
			n.prev.sub = n.next
		} else {
			n.prev.next = n.next
		}
		if n.next != nil {
			n.next.prev = n.prev
		}
		n.prev = nil
		n.next = nil
	}
}

// Parent returns the immediate ancestor of node n,
// or nil if n is a root.
func (n *Node) Parent() *Node {
	for x := n; x.prev != nil; x = x.prev {
		if x.prev.sub == x {
			return x.prev
		}
	}
	return nil
}

// World returns the world transform of node n as of
// the last call to Update.
func (n *Node) World() *linear.M4 { return &n.world }

// ForEach calls f for each descendant of node n.
// Ancestors are processed first.
// The scene graph must not be changed until this
// method returns.
func (n *Node) ForEach(f func(*Node)) {
	if n.sub == nil {
		return
	}
	que := []*Node{n.sub}
	for len(que) > 0 {
		for nd := que[0]; nd != nil; nd = nd.next {
			f(nd)
			if sub := nd.sub; sub != nil {
				que = append(que, sub)
			}
		}
		que = que[1:]
	}
}

// Until calls f for each descendant of node n.
// Ancestors are processed first. If f returns false,
// Until returns immediately.
// The scene graph must not be changed until this
// method returns.
func (n *Node) Until(f func(*Node) bool) {
	if n.sub == nil {
		return
	}
	que := []*Node{n.sub}
	for len(que) > 0 {
		for nd := que[0]; nd != nil; nd = nd.next {
			if !f(nd) {
				return
			}
			if sub := nd.sub; sub != nil {
				que = append(que, sub)
			}
		}
		que = que[1:]
	}
}

// Update computes the world transforms of node n
// and of every descendant of n.
// The world transform of n's immediate ancestor is
// assumed to be current.
func (n *Node) Update() {
	if p := n.Parent(); p != nil {
		n.world.Mul(&p.world, &n.Local)
	} else {
		n.world = n.Local
	}
	type level struct{ first, anc *Node }
	que := []level{{n.sub, n}}
	for len(que) > 0 {
		l := que[0]
		que = que[1:]
		for nd := l.first; nd != nil; nd = nd.next {
			nd.world.Mul(&l.anc.world, &nd.Local)
			if nd.sub != nil {
				que = append(que, level{nd.sub, nd})
			}
		}
	}
}
