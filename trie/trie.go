// Package trie implements the routing structure from a normalized key to
// its owning page (spec §4.4): an arena of nodes addressed by integer
// handles, where a leaf owns a page and an internal node has up to 37
// children (the alphabet {0-9,a-z} plus the page package's sentinel
// "terminates here" marker). Nodes never hold back-pointers; a parent
// knows its children, a child knows only its own path string.
package trie

import (
	"sync"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/page"
)

type node struct {
	isLeaf   bool
	children map[byte]int32 // only populated for internal nodes
}

// Trie is the routing structure described above. The zero value is not
// usable; construct with New.
type Trie struct {
	mu     sync.Mutex
	nodes  []*node
	byPath map[string]int32
}

const rootHandle int32 = 0

// New returns a trie with a single leaf node at the root, backed by
// `_root.dat`.
func New() *Trie {
	t := &Trie{
		nodes:  []*node{{isLeaf: true}},
		byPath: map[string]int32{"": rootHandle},
	}
	return t
}

// Locate walks from the root, descending into the child indexed by each
// successive normalized character of key while the current node is
// internal, and returns the path of the first leaf encountered — real or
// implied. If traversal would need a child that was never created (no
// write has ever reached that branch), Locate returns the path that
// child WOULD have, one level below the deepest internal node reached,
// without registering any node for it: the page at that path is created
// lazily on first write (spec §3 Lifecycle), and a read against it is a
// plain miss.
func (t *Trie) Locate(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := ""
	cur := t.nodes[rootHandle]
	for !cur.isLeaf {
		var c byte
		if len(path) < len(key) {
			c = key[len(path)]
		} else {
			c = page.SentinelChar
		}
		childHandle, ok := cur.children[c]
		if !ok {
			return path + string(c)
		}
		path += string(c)
		cur = t.nodes[childHandle]
	}
	return path
}

// InstallSplit atomically replaces the leaf at parentPath with an
// internal node whose children are fresh leaves at parentPath+c for each
// c in childChars (spec §4.4). Returns the full path of each new child,
// in the same order childChars was given.
func (t *Trie) InstallSplit(parentPath string, childChars []byte) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, ok := t.byPath[parentPath]
	if !ok || !t.nodes[handle].isLeaf {
		return nil, common.ErrIO
	}

	n := &node{isLeaf: false, children: make(map[byte]int32, len(childChars))}
	paths := make([]string, len(childChars))
	for i, c := range childChars {
		childPath := parentPath + string(c)
		childHandle := int32(len(t.nodes))
		t.nodes = append(t.nodes, &node{isLeaf: true})
		t.byPath[childPath] = childHandle
		n.children[c] = childHandle
		paths[i] = childPath
	}
	t.nodes[handle] = n
	return paths, nil
}

// InstallLeafPath registers path as a leaf, creating internal nodes for
// every intermediate prefix as needed. It is idempotent for a path that
// is already a known leaf. Used by Recovery to rebuild the trie from the
// set of non-retired `*.dat` files found on disk.
func (t *Trie) InstallLeafPath(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := rootHandle
	for i := 0; i < len(path); i++ {
		c := path[i]
		n := t.nodes[cur]
		if n.isLeaf {
			n.isLeaf = false
			n.children = make(map[byte]int32)
		}
		child, ok := n.children[c]
		if !ok {
			child = int32(len(t.nodes))
			t.nodes = append(t.nodes, &node{isLeaf: true})
			n.children[c] = child
			t.byPath[path[:i+1]] = child
		}
		cur = child
	}
	return nil
}

// IsLeaf reports whether path currently addresses a leaf node.
func (t *Trie) IsLeaf(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byPath[path]
	return ok && t.nodes[h].isLeaf
}

// Leaves returns every currently registered leaf path, used by range
// scans to find the pages overlapping a key range and by Stats.
func (t *Trie) Leaves() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for p, h := range t.byPath {
		if t.nodes[h].isLeaf {
			out = append(out, p)
		}
	}
	return out
}
