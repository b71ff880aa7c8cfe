package btree

import "github.com/cockroachdb/errors"

// Validate checks the structural invariants of the tree and returns an error
// describing the first violation found.
func (t *Tree[K]) Validate() error {
	leafDepth := -1
	return t.validate(t.root, 0, true, &leafDepth, nil, nil)
}

func (t *Tree[K]) validate(n *Node[K], depth int, isRoot bool, leafDepth *int, lower, upper *K) error {
	maxKeys := 2*t.degree - 1
	if n.KeyCount() > maxKeys {
		return errors.Newf("node %s at depth %d holds %d keys, more than %d", formatKeys(n.keys), depth, n.KeyCount(), maxKeys)
	}
	if !isRoot && n.KeyCount() < t.degree-1 {
		return errors.Newf("node %s at depth %d holds %d keys, fewer than %d", formatKeys(n.keys), depth, n.KeyCount(), t.degree-1)
	}
	for i, key := range n.keys {
		if i > 0 && t.cmp(n.keys[i-1], key) > 0 {
			return errors.Newf("node %s at depth %d is not sorted", formatKeys(n.keys), depth)
		}
		if lower != nil && t.cmp(key, *lower) < 0 {
			return errors.Newf("key %v at depth %d is below its separator %v", key, depth, *lower)
		}
		if upper != nil && t.cmp(key, *upper) > 0 {
			return errors.Newf("key %v at depth %d is above its separator %v", key, depth, *upper)
		}
	}

	if n.leaf != (len(n.children) == 0) {
		return errors.Newf("node %s at depth %d has leaf=%t with %d children", formatKeys(n.keys), depth, n.leaf, len(n.children))
	}
	if n.leaf {
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return errors.Newf("leaf %s at depth %d, expected every leaf at depth %d", formatKeys(n.keys), depth, *leafDepth)
		}
		return nil
	}

	if len(n.children) != n.KeyCount()+1 {
		return errors.Newf("node %s at depth %d has %d children for %d keys", formatKeys(n.keys), depth, len(n.children), n.KeyCount())
	}
	for i, child := range n.children {
		lo, hi := lower, upper
		if i > 0 {
			lo = &n.keys[i-1]
		}
		if i < len(n.keys) {
			hi = &n.keys[i]
		}
		if err := t.validate(child, depth+1, false, leafDepth, lo, hi); err != nil {
			return err
		}
	}
	return nil
}
