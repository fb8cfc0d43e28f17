// Package engine wires together the trie, page cache, log files, and
// optional replica fan-out into the single-writer storage engine described
// by the spec: one Engine per data directory, safe for concurrent callers
// behind its own internal locking.
package engine

import (
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/keyvalidator"
	"github.com/intellect4all/triekv/logfile"
	"github.com/intellect4all/triekv/page"
	"github.com/intellect4all/triekv/pagecache"
	"github.com/intellect4all/triekv/trie"
)

// Engine is the top-level storage engine: a trie of pages, a bounded page
// cache, and (on a primary) a link forwarding writes to replicas.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	trie  *trie.Trie
	cache *pagecache.Cache
	rlink *ReplicaLink

	startedAt   time.Time
	writeCount  atomic.Int64
	readCount   atomic.Int64
	splitCount  atomic.Int64
	poisonCount atomic.Int64
	closed      atomic.Bool
}

// New recovers (or creates) the data directory at cfg.DataDir and returns a
// ready-to-use Engine. The replica link is nil on a replica, or on a primary
// with no configured downstream replicas.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.WithDefaults()

	cache := pagecache.New(cfg.DataDir, cfg.CacheSizeBytes, cfg.MaxPageBytes)
	t, err := recover(cfg.DataDir, cache)
	if err != nil {
		return nil, errors.Wrap(err, "recover data directory")
	}

	var rlink *ReplicaLink
	if !cfg.IsReplica && len(cfg.Replicas) > 0 {
		rlink = NewReplicaLink(cfg.Replicas)
	}

	return &Engine{
		cfg:       cfg,
		trie:      t,
		cache:     cache,
		rlink:     rlink,
		startedAt: time.Now(),
	}, nil
}

// Close flushes nothing extra (appends are already on disk or OS-buffered
// per the configured durability mode), stops the replica link, and causes
// every subsequent call on e to fail with common.ErrClosed. Close is
// idempotent: closing twice is a no-op.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	if e.rlink != nil {
		e.rlink.Close()
	}
	return nil
}

// IsReplica reports whether this Engine was configured as a replica,
// used by httpapi to decide whether a port must refuse writes.
func (e *Engine) IsReplica() bool { return e.cfg.IsReplica }

// Get returns the value for key, or common.ErrNotFound if absent. A key
// whose owning page has never been written to disk is recognized without
// ever creating a log file for it.
func (e *Engine) Get(key string) ([]byte, error) {
	if e.closed.Load() {
		return nil, common.ErrClosed
	}
	norm, err := keyvalidator.Validate([]byte(key))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.readCount.Add(1)

	leafPath := e.trie.Locate(norm)
	diskPath := logfile.PathForPrefix(e.cfg.DataDir, leafPath)
	if _, err := os.Stat(diskPath); os.IsNotExist(err) {
		return nil, common.ErrNotFound
	}

	pg, _, err := e.cache.Pin(leafPath)
	if err != nil {
		return nil, err
	}
	defer e.cache.Unpin(leafPath)

	v, ok := pg.Get(norm)
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Put inserts or overwrites key with value (spec §4.6 write path).
func (e *Engine) Put(key string, value []byte) error {
	if err := keyvalidator.ValidateValue(value); err != nil {
		return err
	}
	norm, err := keyvalidator.Validate([]byte(key))
	if err != nil {
		return err
	}
	return e.write(common.Record{Op: common.OpPut, Key: norm, Value: value})
}

// Delete removes key. Deleting an absent key is not an error (spec §4.6).
func (e *Engine) Delete(key string) error {
	norm, err := keyvalidator.Validate([]byte(key))
	if err != nil {
		return err
	}
	return e.write(common.Record{Op: common.OpDelete, Key: norm})
}

// BulkPut applies every pair, stopping at the first validation failure
// encountered before any mutation is applied; once underway, mutations are
// best-effort and the first durable-write failure is returned.
func (e *Engine) BulkPut(pairs []common.KV) error {
	normed := make([]common.KV, len(pairs))
	for i, kv := range pairs {
		if err := keyvalidator.ValidateValue(kv.Value); err != nil {
			return err
		}
		norm, err := keyvalidator.Validate([]byte(kv.Key))
		if err != nil {
			return err
		}
		normed[i] = common.KV{Key: norm, Value: kv.Value}
	}
	for _, kv := range normed {
		if err := e.write(common.Record{Op: common.OpPut, Key: kv.Key, Value: kv.Value}); err != nil {
			return err
		}
	}
	return nil
}

// write applies one record through the full protocol: locate, pin, append,
// sync-or-mark-flushed, and only then apply in memory (so a failed append
// leaves the page unchanged), forward to replicas, and check whether the
// page must split; the page is unpinned on return (spec §4.6).
func (e *Engine) write(rec common.Record) error {
	if e.closed.Load() {
		return common.ErrClosed
	}
	// A replica's own Engine still applies writes forwarded by its
	// primary (spec §4.7); httpapi is what refuses them on the public
	// port, by role rather than by IsReplica alone.
	e.mu.Lock()
	defer e.mu.Unlock()

	leafPath := e.trie.Locate(rec.Key)
	if !e.trie.IsLeaf(leafPath) {
		// First write to an implied leaf (see trie.Locate): register it so
		// range scans, Stats and a later split can find it.
		if err := e.trie.InstallLeafPath(leafPath); err != nil {
			return err
		}
	}
	pg, lf, err := e.cache.Pin(leafPath)
	if err != nil {
		return err
	}
	defer e.cache.Unpin(leafPath)

	if poisoned := lf.Poisoned(); poisoned != nil {
		e.poisonCount.Add(1)
		return poisoned
	}

	if err := lf.Append(rec); err != nil {
		e.poisonCount.Add(1)
		return err
	}
	switch e.cfg.Durability {
	case FsyncStrict:
		if err := lf.Sync(); err != nil {
			e.poisonCount.Add(1)
			return err
		}
	default:
		lf.MarkFlushed()
	}

	switch rec.Op {
	case common.OpPut:
		pg.Put(rec.Key, rec.Value)
	case common.OpDelete:
		pg.Delete(rec.Key)
	}

	e.writeCount.Add(1)
	if e.rlink != nil {
		e.rlink.Forward(rec)
	}

	if pg.ShouldSplit(e.cfg.MaxPageBytes) {
		if err := e.split(leafPath, pg, lf); err != nil {
			return err
		}
	}
	return nil
}

// split partitions an overflowing leaf page into its children (spec §4.6
// step 8): write each child's full content to its own fresh log file,
// install the new trie structure, forget the parent from cache (closing
// its log file handle), then retire its file. Forget happens after InstallSplit so that no reader can observe
// leafPath as a leaf while its log file handle is still owned by the
// cache entry that Forget is about to close.
func (e *Engine) split(leafPath string, pg *page.Page, lf *logfile.LogFile) error {
	children := pg.Split()
	childChars := page.SortedChildChars(children)

	for _, c := range childChars {
		child := children[c]
		childDiskPath := logfile.PathForPrefix(e.cfg.DataDir, child.Prefix)
		childLog, err := logfile.Open(childDiskPath)
		if err != nil {
			return errors.Wrapf(err, "open split child log %s", childDiskPath)
		}
		for _, kv := range child.Entries() {
			if err := childLog.Append(common.Record{Op: common.OpPut, Key: kv.Key, Value: kv.Value}); err != nil {
				return errors.Wrapf(err, "write split child log %s", childDiskPath)
			}
		}
		if err := childLog.Sync(); err != nil {
			return errors.Wrapf(err, "sync split child log %s", childDiskPath)
		}
		if err := e.cache.Install(child.Prefix, child, childLog); err != nil {
			return err
		}
		e.cache.Unpin(child.Prefix) // Install pins once; split doesn't hold a reference
	}

	if _, err := e.trie.InstallSplit(leafPath, childChars); err != nil {
		return err
	}

	parentDiskPath := lf.Path()
	e.cache.Forget(leafPath)
	if err := logfile.RetirePath(parentDiskPath); err != nil {
		return err
	}

	e.splitCount.Add(1)
	return nil
}

// Range returns up to cfg.MaxRangeResponse ascending (key, value) pairs
// with lo <= key <= hi, merged across every leaf page whose prefix can
// overlap the range (spec §4.6 range scan). lo and hi are normalized the
// same way a key is (case-folded, §4.1) before comparison against stored
// entries; an empty bound, the sentinel handleRange passes for a query
// parameter that was never supplied, leaves that end of the range open.
func (e *Engine) Range(lo, hi string, limit int) ([]common.KV, error) {
	if e.closed.Load() {
		return nil, common.ErrClosed
	}
	lo, err := keyvalidator.NormalizeBound(lo)
	if err != nil {
		return nil, err
	}
	hi, err = keyvalidator.NormalizeBound(hi)
	if err != nil {
		return nil, err
	}
	if hi == "" {
		// No normalized key sorts above this one.
		hi = strings.Repeat("z", keyvalidator.MaxKeyLen)
	}

	if limit <= 0 || limit > e.cfg.MaxRangeResponse {
		limit = e.cfg.MaxRangeResponse
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.readCount.Add(1)

	leaves := e.trie.Leaves()
	// A sentinel leaf holds the single key equal to its path without the
	// sentinel byte, so it sorts by that key, ahead of its siblings.
	sentinel := string(page.SentinelChar)
	sort.Slice(leaves, func(i, j int) bool {
		return strings.TrimSuffix(leaves[i], sentinel) < strings.TrimSuffix(leaves[j], sentinel)
	})

	var out []common.KV
	for _, leafPath := range leaves {
		if !leafOverlaps(leafPath, lo, hi) {
			continue
		}
		diskPath := logfile.PathForPrefix(e.cfg.DataDir, leafPath)
		if _, err := os.Stat(diskPath); os.IsNotExist(err) {
			continue
		}
		pg, _, err := e.cache.Pin(leafPath)
		if err != nil {
			return nil, err
		}
		out = append(out, pg.Range(lo, hi, limit-len(out))...)
		e.cache.Unpin(leafPath)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// leafOverlaps reports whether a leaf's owned key space — every normalized
// key with leafPath as a prefix, or, if leafPath ends in the page
// package's sentinel byte, the single key equal to leafPath without that
// byte — can contain any key in [lo, hi].
func leafOverlaps(leafPath, lo, hi string) bool {
	if n := len(leafPath); n > 0 && leafPath[n-1] == page.SentinelChar {
		key := leafPath[:n-1]
		return key >= lo && key <= hi
	}
	// The leaf's key space is every string with this prefix, spanning
	// from leafPath itself up to leafPath followed by an infinite run of
	// the alphabet's last character; comparing the prefix against hi and
	// lo's own prefix of the same length is sufficient because normalized
	// keys compare byte-for-byte.
	if leafPath > hi {
		return false
	}
	lower := lo
	if len(lo) > len(leafPath) {
		lower = lo[:len(leafPath)]
	}
	return leafPath >= lower
}

// Stats reports a snapshot of engine-wide counters (spec §5).
func (e *Engine) Stats() common.Stats {
	e.mu.Lock()
	leaves := e.trie.Leaves()
	e.mu.Unlock()

	var numKeys, logBytes int64
	for _, leafPath := range leaves {
		diskPath := logfile.PathForPrefix(e.cfg.DataDir, leafPath)
		fi, err := os.Stat(diskPath)
		if os.IsNotExist(err) {
			continue
		}
		if err == nil {
			logBytes += fi.Size()
		}
		if pg, _, err := e.cache.Pin(leafPath); err == nil {
			numKeys += int64(pg.Len())
			e.cache.Unpin(leafPath)
		}
	}

	dropped := int64(0)
	if e.rlink != nil {
		dropped = e.rlink.Dropped()
	}

	return common.Stats{
		NumKeys:        numKeys,
		ResidentPages:  e.cache.Resident(),
		TotalLogBytes:  logBytes,
		WriteCount:     e.writeCount.Load(),
		ReadCount:      e.readCount.Load(),
		SplitCount:     e.splitCount.Load(),
		PoisonedPages:  e.poisonCount.Load(),
		ReplicaDropped: dropped,
		Uptime:         time.Since(e.startedAt),
	}
}
