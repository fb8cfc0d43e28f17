package logfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/common/testutil"
)

func tempLogPath(t *testing.T) string {
	return filepath.Join(testutil.TempDir(t), "a.dat")
}

func TestAppendAndReplayRoundTrip(t *testing.T) {
	path := tempLogPath(t)
	lf, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "foo", Value: []byte("bar")}))
	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "foo", Value: []byte("baz")}))
	require.NoError(t, lf.Append(common.Record{Op: common.OpDelete, Key: "foo"}))
	require.NoError(t, lf.Close())

	records, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, common.OpPut, records[0].Op)
	assert.Equal(t, "bar", string(records[0].Value))
	assert.Equal(t, common.OpPut, records[1].Op)
	assert.Equal(t, "baz", string(records[1].Value))
	assert.Equal(t, common.OpDelete, records[2].Op)
	assert.Empty(t, records[2].Value)
}

func TestReplayTruncatesTornTail(t *testing.T) {
	path := tempLogPath(t)
	lf, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "a", Value: []byte("1")}))
	goodSize := lf.Size()
	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "b", Value: []byte("2")}))
	require.NoError(t, lf.Close())

	// Simulate a crash mid-write: chop off the tail of the second record.
	require.NoError(t, os.Truncate(path, goodSize+3))

	records, err := Replay(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Key)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, goodSize, stat.Size())
}

func TestRetireRenamesFile(t *testing.T) {
	path := tempLogPath(t)
	lf, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, lf.Append(common.Record{Op: common.OpPut, Key: "a", Value: []byte("1")}))
	require.NoError(t, lf.Retire())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".old")
	assert.NoError(t, err)
}

func TestAppendAfterIOFailureStaysPoisoned(t *testing.T) {
	path := tempLogPath(t)
	lf, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, lf.Close()) // closing underneath triggers a write error

	err = lf.Append(common.Record{Op: common.OpPut, Key: "a", Value: []byte("1")})
	require.Error(t, err)
	assert.ErrorIs(t, lf.Poisoned(), common.ErrIO)

	// Once poisoned, further appends fail immediately without touching the fd again.
	err = lf.Append(common.Record{Op: common.OpPut, Key: "b", Value: []byte("2")})
	assert.ErrorIs(t, err, common.ErrIO)
}

func TestPathForPrefix(t *testing.T) {
	assert.Equal(t, filepath.Join("/d", "_root.dat"), PathForPrefix("/d", ""))
	assert.Equal(t, filepath.Join("/d", "ab.dat"), PathForPrefix("/d", "ab"))
}
