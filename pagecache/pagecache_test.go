package pagecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/common/testutil"
)

func TestCapFormula(t *testing.T) {
	// 128 MiB / (4 KiB * 3.5) = 9362.28 -> 9362
	assert.Equal(t, 9362, Cap(128*1024*1024, 4096))
	assert.Equal(t, 1, Cap(1, 4096)) // floor of 1 even for a tiny budget
}

func TestPinLoadsAndReplaysExistingLog(t *testing.T) {
	dir := testutil.TempDir(t)
	c := New(dir, 128*1024*1024, 4096)

	pg, lf, err := c.Pin("")
	require.NoError(t, err)
	pg.Put("foo", []byte("bar"))
	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "foo", Value: []byte("bar")}))
	require.NoError(t, lf.Sync())
	c.Unpin("")

	c2 := New(dir, 128*1024*1024, 4096)
	pg2, _, err := c2.Pin("")
	require.NoError(t, err)
	v, ok := pg2.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", string(v))
}

func TestPinEvictsLRUWhenAtCap(t *testing.T) {
	dir := testutil.TempDir(t)
	c := New(dir, 1, 1) // Cap == 1

	_, lf1, err := c.Pin("a")
	require.NoError(t, err)
	require.NoError(t, lf1.Sync())
	c.Unpin("a")
	assert.Equal(t, 1, c.Resident())

	_, lf2, err := c.Pin("b")
	require.NoError(t, err)
	require.NoError(t, lf2.Sync())
	c.Unpin("b")

	assert.Equal(t, 1, c.Resident()) // "a" evicted to make room for "b"
}

func TestPinReturnsOverloadedWhenNothingEvictable(t *testing.T) {
	dir := testutil.TempDir(t)
	c := New(dir, 1, 1) // Cap == 1

	_, _, err := c.Pin("a")
	require.NoError(t, err) // stays pinned -> not evictable

	_, _, err = c.Pin("b")
	assert.ErrorIs(t, err, common.ErrOverloaded)
}

func TestForgetClosesAndRemovesEntry(t *testing.T) {
	dir := testutil.TempDir(t)
	c := New(dir, 128*1024*1024, 4096)

	_, lf, err := c.Pin("a")
	require.NoError(t, err)
	require.NoError(t, lf.Sync())
	c.Unpin("a")
	require.Equal(t, 1, c.Resident())

	c.Forget("a")
	assert.Equal(t, 0, c.Resident())
}
