package trie

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/triekv/page"
)

func TestNewTrieRootIsLeaf(t *testing.T) {
	tr := New()
	assert.True(t, tr.IsLeaf(""))
	assert.Equal(t, "", tr.Locate("anything"))
}

func TestLocateReturnsImpliedPathWhenBranchUnpopulated(t *testing.T) {
	tr := New()
	_, err := tr.InstallSplit("", []byte{'a', 'b'})
	require.NoError(t, err)

	assert.Equal(t, "a", tr.Locate("apple"))
	assert.Equal(t, "b", tr.Locate("banana"))
	assert.Equal(t, "c", tr.Locate("cherry")) // 'c' never installed: implied leaf path
}

func TestInstallSplitReplacesLeafWithInternal(t *testing.T) {
	tr := New()
	paths, err := tr.InstallSplit("", []byte{'a', 'b', page.SentinelChar})
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"a", "b", string(page.SentinelChar)}, paths)

	assert.False(t, tr.IsLeaf(""))
	assert.True(t, tr.IsLeaf("a"))
	assert.True(t, tr.IsLeaf("b"))
}

func TestInstallSplitRejectsNonLeafParent(t *testing.T) {
	tr := New()
	_, err := tr.InstallSplit("", []byte{'a'})
	require.NoError(t, err)

	_, err = tr.InstallSplit("", []byte{'x'})
	assert.Error(t, err)
}

func TestMultiLevelSplitRouting(t *testing.T) {
	tr := New()
	_, err := tr.InstallSplit("", []byte{'a'})
	require.NoError(t, err)
	_, err = tr.InstallSplit("a", []byte{'b', 'c'})
	require.NoError(t, err)

	assert.Equal(t, "ab", tr.Locate("abxyz"))
	assert.Equal(t, "ac", tr.Locate("acxyz"))
}

func TestInstallLeafPathBuildsIntermediateInternalNodes(t *testing.T) {
	tr := New()
	require.NoError(t, tr.InstallLeafPath("ab"))
	require.NoError(t, tr.InstallLeafPath("ac"))

	assert.False(t, tr.IsLeaf("a"))
	assert.True(t, tr.IsLeaf("ab"))
	assert.True(t, tr.IsLeaf("ac"))
	assert.Equal(t, "ab", tr.Locate("abxyz"))
}

func TestLeavesReturnsAllLeafPaths(t *testing.T) {
	tr := New()
	_, err := tr.InstallSplit("", []byte{'a', 'b'})
	require.NoError(t, err)

	leaves := tr.Leaves()
	sort.Strings(leaves)
	assert.Equal(t, []string{"a", "b"}, leaves)
}
