package engine

import (
	"os"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/intellect4all/triekv/pagecache"
	"github.com/intellect4all/triekv/trie"
)

// recover implements spec §4.8: enumerate every `*.dat` file, build a
// provisional trie from the filenames, and eagerly warm the first Cap()
// pages (alphabetically) into cache so the engine doesn't take a cold
// replay on its very first requests. Everything else replays lazily on
// first access, via the page cache.
func recover(dataDir string, cache *pagecache.Cache) (*trie.Trie, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	// `_root.dat` is not created here: a brand-new data directory stays
	// empty until the first write, so that a pure read miss against an
	// empty store never touches disk (spec §3 Lifecycle).
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, err
	}

	all := make(map[string]bool)
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || strings.HasSuffix(name, ".dat.old") || !strings.HasSuffix(name, ".dat") {
			continue
		}
		prefix := strings.TrimSuffix(name, ".dat")
		if prefix == "_root" {
			prefix = ""
		}
		all[prefix] = true
	}

	active := make([]string, 0, len(all))
	for p := range all {
		if hasChildFile(all, p) {
			continue // retired: a longer sibling file exists (spec §4.8)
		}
		active = append(active, p)
	}
	sort.Strings(active)

	t := trie.New()
	for _, p := range active {
		if err := t.InstallLeafPath(p); err != nil {
			return nil, err
		}
	}

	warm := active
	if len(warm) > cache.Cap() {
		warm = warm[:cache.Cap()]
	}

	var g errgroup.Group
	for _, p := range warm {
		p := p
		g.Go(func() error {
			_, _, err := cache.Pin(p)
			if err != nil {
				return err
			}
			cache.Unpin(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return t, nil
}

// hasChildFile reports whether any prefix one character longer than p,
// and extending it, is also present in the set.
func hasChildFile(all map[string]bool, p string) bool {
	for q := range all {
		if len(q) == len(p)+1 && strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}
