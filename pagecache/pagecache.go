// Package pagecache implements the bounded resident set of pages
// described in spec §4.5: LRU with pinning, admission on miss via replay,
// and writeback governed by the engine's durability mode.
package pagecache

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/logfile"
	"github.com/intellect4all/triekv/page"
)

// OverheadFactor converts a disk-bytes budget into a resident-page count;
// spec §4.5/§9 fixes this constant exactly.
const OverheadFactor = 3.5

// Cap computes N = floor(cacheSizeBytes / (maxPageBytes * OverheadFactor)),
// with a floor of 1.
func Cap(cacheSizeBytes, maxPageBytes int64) int {
	n := int64(float64(cacheSizeBytes) / (float64(maxPageBytes) * OverheadFactor))
	if n < 1 {
		n = 1
	}
	return int(n)
}

type entry struct {
	path     string
	page     *page.Page
	log      *logfile.LogFile
	pinCount int
	elem     *list.Element
}

// Cache is the bounded, pinning LRU page cache.
type Cache struct {
	mu           sync.Mutex
	dataDir      string
	maxPageBytes int64
	cap          int
	entries      map[string]*entry
	lru          *list.List // front = most recently used
}

// New creates a page cache rooted at dataDir with the given byte budget.
func New(dataDir string, cacheSizeBytes, maxPageBytes int64) *Cache {
	return &Cache{
		dataDir:      dataDir,
		maxPageBytes: maxPageBytes,
		cap:          Cap(cacheSizeBytes, maxPageBytes),
		entries:      make(map[string]*entry),
		lru:          list.New(),
	}
}

// Cap returns the resident-page count limit.
func (c *Cache) Cap() int { return c.cap }

// Resident returns the number of pages currently held in memory.
func (c *Cache) Resident() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalBytes sums every resident page's bytesEstimate.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, e := range c.entries {
		total += e.page.BytesEstimate()
	}
	return total
}

// Pin loads the page for prefix (replaying its log file if not resident),
// increments its pin count, and returns the resident page and its log
// file. The caller must call Unpin(prefix) exactly once when done.
func (c *Cache) Pin(prefix string) (*page.Page, *logfile.LogFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[prefix]; ok {
		e.pinCount++
		c.lru.MoveToFront(e.elem)
		return e.page, e.log, nil
	}

	if len(c.entries) >= c.cap {
		if !c.evictOneLocked() {
			return nil, nil, common.ErrOverloaded
		}
	}

	path := logfile.PathForPrefix(c.dataDir, prefix)
	lf, err := logfile.Open(path)
	if err != nil {
		return nil, nil, err
	}
	records, err := logfile.Replay(path)
	if err != nil {
		lf.Close()
		return nil, nil, err
	}
	pg := page.New(prefix)
	for _, rec := range records {
		switch rec.Op {
		case common.OpPut:
			pg.Put(rec.Key, rec.Value)
		case common.OpDelete:
			pg.Delete(rec.Key)
		}
	}
	lf.MarkFlushed() // replayed content is, by definition, already on disk

	e := &entry{path: prefix, page: pg, log: lf, pinCount: 1}
	e.elem = c.lru.PushFront(e)
	c.entries[prefix] = e
	return pg, lf, nil
}

// Unpin decrements the pin count for prefix. The page stays resident
// until evicted under pressure.
func (c *Cache) Unpin(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[prefix]; ok && e.pinCount > 0 {
		e.pinCount--
	}
}

// Install admits a freshly created page/log pair directly into the cache
// — used for the child pages created by a split (a first write to a
// brand-new prefix goes through Pin, which creates the log file). The installed entry starts pinned once, to
// be balanced by a matching Unpin.
func (c *Cache) Install(prefix string, pg *page.Page, lf *logfile.LogFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[prefix]; ok {
		e.pinCount++
		c.lru.MoveToFront(e.elem)
		return nil
	}

	if len(c.entries) >= c.cap {
		if !c.evictOneLocked() {
			return common.ErrOverloaded
		}
	}

	e := &entry{path: prefix, page: pg, log: lf, pinCount: 1}
	e.elem = c.lru.PushFront(e)
	c.entries[prefix] = e
	return nil
}

// Forget removes prefix from the cache and closes its log file handle,
// used when a leaf is retired after a split (spec §4.6 step 8) and its
// path is no longer a leaf in the trie.
func (c *Cache) Forget(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[prefix]
	if !ok {
		return
	}
	c.lru.Remove(e.elem)
	delete(c.entries, prefix)
	if err := e.log.Close(); err != nil {
		log.Warn().Err(err).Str("prefix", prefix).Msg("error closing retired log file handle")
	}
}

// evictOneLocked evicts the least-recently-used evictable page: pin count
// zero and fully synced. Must be called with c.mu held. Reports whether
// an eviction happened.
func (c *Cache) evictOneLocked() bool {
	for elem := c.lru.Back(); elem != nil; elem = elem.Prev() {
		e := elem.Value.(*entry)
		if e.pinCount == 0 && e.log.Poisoned() == nil && e.log.Size() == e.log.SyncedOffset() {
			c.lru.Remove(elem)
			delete(c.entries, e.path)
			if err := e.log.Close(); err != nil {
				log.Warn().Err(err).Str("prefix", e.path).Msg("error closing evicted log file handle")
			}
			return true
		}
	}
	return false
}
