// Package page implements the in-memory sorted key/value map for one trie
// leaf (spec §4.3): the resident form of a Log File. A Page tracks a byte
// footprint estimate used by the split policy and by the Page Cache's
// resident-set accounting.
package page

import (
	"sort"

	"github.com/intellect4all/triekv/common"
)

// SentinelChar is the reserved marker byte used for the split policy's
// "self" child: a key whose normalized length ends exactly at the
// parent's prefix has no further character to descend on, so it is
// routed to a child addressed by this byte instead of a real alphanumeric
// character. The key validator's charset (digits and lower-case ASCII
// letters) can never produce it, so it never collides with a real child.
const SentinelChar = '~'

// Page is the sorted mapping from key to value for every live key whose
// normalized form has prefix Prefix.
type Page struct {
	Prefix        string
	entries       map[string][]byte
	bytesEstimate int64
}

// New creates an empty page for prefix.
func New(prefix string) *Page {
	return &Page{Prefix: prefix, entries: make(map[string][]byte)}
}

// BytesEstimate returns the page's current footprint estimate.
func (p *Page) BytesEstimate() int64 { return p.bytesEstimate }

// Len returns the number of live entries.
func (p *Page) Len() int { return len(p.entries) }

// Get looks up a normalized key.
func (p *Page) Get(key string) ([]byte, bool) {
	v, ok := p.entries[key]
	return v, ok
}

// Put inserts or overwrites key, returning the signed delta applied to
// bytesEstimate: new_len - old_len for an update, or the full
// record-overhead-plus-payload cost for a fresh insert.
func (p *Page) Put(key string, value []byte) int64 {
	var delta int64
	if old, ok := p.entries[key]; ok {
		delta = int64(len(value)) - int64(len(old))
	} else {
		delta = int64(common.RecordOverhead + len(key) + len(value))
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	p.entries[key] = cp
	p.bytesEstimate += delta
	return delta
}

// Delete removes key, reporting whether it was present. bytesEstimate
// decreases by the same contribution that the entry added when inserted.
func (p *Page) Delete(key string) bool {
	old, ok := p.entries[key]
	if !ok {
		return false
	}
	delete(p.entries, key)
	p.bytesEstimate -= int64(common.RecordOverhead + len(key) + len(old))
	return true
}

// Range returns up to limit ascending (key, value) pairs with lo <= key <=
// hi, restricted to this page's own entries.
func (p *Page) Range(lo, hi string, limit int) []common.KV {
	if limit <= 0 || lo > hi {
		return nil
	}
	keys := p.sortedKeys()
	out := make([]common.KV, 0, limit)
	for _, k := range keys {
		if k < lo {
			continue
		}
		if k > hi {
			break
		}
		out = append(out, common.KV{Key: k, Value: p.entries[k]})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// ShouldSplit reports whether the page's footprint exceeds maxPageBytes.
func (p *Page) ShouldSplit(maxPageBytes int64) bool {
	return p.bytesEstimate > maxPageBytes
}

// Split partitions entries by the character at position len(Prefix) of
// each normalized key, returning one child Page per distinct character.
// A key whose normalized length equals len(Prefix) — i.e. it terminates
// exactly at this prefix and has no further character — is routed to the
// SentinelChar child instead of being retained by the parent, so that
// after a split the parent trie node can become purely internal (spec
// invariant 4). Ordering across children is deterministic: callers range
// over the returned map in the {0-9,a-z,SentinelChar} alphabet order via
// SortedChildChars.
func (p *Page) Split() map[byte]*Page {
	children := make(map[byte]*Page)
	depth := len(p.Prefix)
	for k, v := range p.entries {
		var c byte
		if len(k) == depth {
			c = SentinelChar
		} else {
			c = k[depth]
		}
		child, ok := children[c]
		if !ok {
			child = New(p.Prefix + string(c))
			children[c] = child
		}
		child.Put(k, v)
	}
	return children
}

// SortedChildChars returns the keys of a Split() result in the
// deterministic alphabet order {0-9, a-z, SentinelChar}.
func SortedChildChars(children map[byte]*Page) []byte {
	out := make([]byte, 0, len(children))
	for c := range children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return childRank(out[i]) < childRank(out[j])
	})
	return out
}

func childRank(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return 10 + int(c-'a')
	default: // SentinelChar sorts last
		return 1 << 20
	}
}

func (p *Page) sortedKeys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns every (key, value) pair in ascending order. Used by
// split-driven relogging.
func (p *Page) Entries() []common.KV {
	keys := p.sortedKeys()
	out := make([]common.KV, 0, len(keys))
	for _, k := range keys {
		out = append(out, common.KV{Key: k, Value: p.entries[k]})
	}
	return out
}
