package btree

import (
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
)

// CompareFunc orders keys. It returns a negative number when a < b, zero when
// a == b and a positive number when a > b.
type CompareFunc[K any] func(a, b K) int

/*
A node holds between degree-1 and 2*degree-1 keys (the root may hold fewer).
An internal node with k keys owns exactly k+1 children, and every key of
children[i] is smaller than keys[i], which is smaller than every key of children[i+1].
*/
type Node[K any] struct {
	degree   int
	keys     []K
	children []*Node[K]
	leaf     bool
	cmp      CompareFunc[K]
}

func newNode[K any](degree int, cmp CompareFunc[K]) *Node[K] {
	return &Node[K]{
		degree: degree,
		leaf:   true,
		cmp:    cmp,
	}
}

func (n *Node[K]) IsLeaf() bool {
	return n.leaf
}

func (n *Node[K]) KeyCount() int {
	return len(n.keys)
}

// IsFull reports whether the node holds 2*degree-1 keys and must be split
// before another key is pushed into it.
func (n *Node[K]) IsFull() bool {
	return n.KeyCount() == 2*n.degree-1
}

// Keys returns a copy of the node's keys in ascending order.
func (n *Node[K]) Keys() []K {
	return slices.Clone(n.keys)
}

// Children returns a copy of the node's child pointers, left to right.
func (n *Node[K]) Children() []*Node[K] {
	return slices.Clone(n.children)
}

// insert key keeping keys ascending; an equal key lands after the existing ones.
func (n *Node[K]) insertKeySorted(key K) {
	pos := sort.Search(len(n.keys), func(i int) bool {
		return n.cmp(n.keys[i], key) > 0
	})
	n.keys = slices.Insert(n.keys, pos, key)
}

// insertKeyAt puts key at an arbitrary position of the node.
func (n *Node[K]) insertKeyAt(pos int, key K) {
	n.keys = slices.Insert(n.keys, pos, key)
}

/*
insertChildAt puts child at an arbitrary position of the node.
A child without keys can't be ordered against its neighbours, so it is rejected outright.
*/
func (n *Node[K]) insertChildAt(pos int, child *Node[K]) {
	if child.KeyCount() == 0 {
		panic(errors.AssertionFailedf("btree: cannot attach a child without keys"))
	}
	n.children = slices.Insert(n.children, pos, child)
	n.leaf = false
}

/*
split moves the upper half of a full node into a new sibling and promotes the
median key into parent. The receiver keeps keys[:mid] and children[:mid+1],
the sibling takes keys[mid+1:] and children[mid+1:].
The median lands at the receiver's own index in parent and the sibling right after it.
For distinct keys that is exactly the sorted position; with equal keys it keeps
the receiver, the median and the sibling adjacent, which comparing keys can't guarantee.
Both halves are copied so the two nodes never share a backing array.
*/
func (n *Node[K]) split(parent *Node[K]) *Node[K] {
	pos := slices.Index(parent.children, n)
	if pos < 0 {
		panic(errors.AssertionFailedf("btree: split into a node that doesn't own the receiver"))
	}
	mid := n.KeyCount() / 2
	parent.insertKeyAt(pos, n.keys[mid])

	sibling := newNode(n.degree, n.cmp)
	sibling.keys = slices.Clone(n.keys[mid+1:])
	if len(n.children) > mid+1 {
		sibling.children = slices.Clone(n.children[mid+1:])
		n.children = slices.Clip(n.children[:mid+1])
	}
	sibling.leaf = len(sibling.children) == 0
	n.keys = slices.Clip(n.keys[:mid])

	parent.insertChildAt(pos+1, sibling)
	return sibling
}
