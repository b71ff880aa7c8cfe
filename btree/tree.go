package btree

import (
	"cmp"
	"fmt"
	"strings"
)

/*
Tree only keeps a pointer to the root node and the minimum degree every node shares.
A tree is made up of nodes. Each node contains ordered keys.
*/
type Tree[K any] struct {
	degree int
	root   *Node[K]
	cmp    CompareFunc[K]
	count  int
}

// New returns an empty tree of the given minimum degree ordered by cmp.
// It panics when degree is smaller than 2.
func New[K any](degree int, cmp CompareFunc[K]) *Tree[K] {
	if degree < 2 {
		panic(fmt.Sprintf("btree: bad degree %d", degree))
	}
	return &Tree[K]{
		degree: degree,
		root:   newNode(degree, cmp),
		cmp:    cmp,
	}
}

// NewOrdered returns an empty tree for keys supporting the < operator.
func NewOrdered[K cmp.Ordered](degree int) *Tree[K] {
	return New[K](degree, cmp.Compare[K])
}

func (t *Tree[K]) Degree() int {
	return t.degree
}

func (t *Tree[K]) Root() *Node[K] {
	return t.root
}

// Len returns the number of keys inserted so far.
func (t *Tree[K]) Len() int {
	return t.count
}

// Height returns the number of edges between the root and any leaf.
func (t *Tree[K]) Height() int {
	height := 0
	for n := t.root; !n.leaf; n = n.children[0] {
		height++
	}
	return height
}

/*
Insert never lets a split travel back up the tree.
When the root is full, a new root is created and the existing root becomes its only child
before being split into it. Every full child met on the way down is split the same way
before descending into it, so the parent always has room for the promoted key.
Insert does not check for duplicates: callers that want unique keys search first.
*/
func (t *Tree[K]) Insert(key K) {
	if t.root.IsFull() {
		newRoot := newNode(t.degree, t.cmp)
		newRoot.leaf = false
		newRoot.children = append(newRoot.children, t.root)
		t.root.split(newRoot)
		t.root = newRoot
	}
	t.insertNonFull(t.root, key)
	t.count++
}

func (t *Tree[K]) insertNonFull(n *Node[K], key K) {
	for !n.leaf {
		i := n.childIndex(key)
		if n.children[i].IsFull() {
			n.children[i].split(n)
			// keys equal to the promoted median go right, like in childIndex
			if t.cmp(key, n.keys[i]) >= 0 {
				i++
			}
		}
		n = n.children[i]
	}
	n.insertKeySorted(key)
}

// childIndex returns the first index whose key is greater than key, or the
// last child when there is none.
func (n *Node[K]) childIndex(key K) int {
	i := len(n.keys) - 1
	for i >= 0 && n.cmp(key, n.keys[i]) < 0 {
		i--
	}
	return i + 1
}

// Search returns the node holding key, or nil when the tree doesn't contain it.
func (t *Tree[K]) Search(key K) *Node[K] {
	return t.SearchFrom(t.root, key)
}

// SearchFrom runs Search on the subtree rooted at node.
func (t *Tree[K]) SearchFrom(node *Node[K], key K) *Node[K] {
	for node != nil {
		i := 0
		for i < len(node.keys) && t.cmp(key, node.keys[i]) > 0 {
			i++
		}
		if i < len(node.keys) && t.cmp(key, node.keys[i]) == 0 {
			return node
		}
		if node.leaf {
			return nil
		}
		node = node.children[i]
	}
	return nil
}

// Has reports whether key was inserted into the tree.
func (t *Tree[K]) Has(key K) bool {
	return t.Search(key) != nil
}

// Delete is not supported and leaves the tree untouched.
func (t *Tree[K]) Delete(key K) {}

// Scan calls fn for every key in ascending order until fn returns false.
func (t *Tree[K]) Scan(fn func(key K) bool) {
	t.traverse(t.root, fn)
}

func (t *Tree[K]) traverse(n *Node[K], fn func(key K) bool) bool {
	for i, key := range n.keys {
		if !n.leaf && !t.traverse(n.children[i], fn) {
			return false
		}
		if !fn(key) {
			return false
		}
	}
	if !n.leaf {
		return t.traverse(n.children[len(n.keys)], fn)
	}
	return true
}

// String renders the tree depth first, one node per line.
func (t *Tree[K]) String() string {
	var sb strings.Builder
	render(&sb, t.root, "", true, plainStyle[K]{})
	return sb.String()
}

// formatKeys prints keys the same way for every style: [a, b, c].
func formatKeys[K any](keys []K) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(k)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
