package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/triekv/common"
	"github.com/intellect4all/triekv/common/testutil"
)

func newTestEngine(t *testing.T) *Engine {
	dir := testutil.TempDir(t)
	eng, err := New(Config{DataDir: dir, MaxPageBytes: 4096, CacheSizeBytes: 1 << 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestPutGetDeleteRoundTrip(t *testing.T) {
	eng := newTestEngine(t)

	require.NoError(t, eng.Put("foo", []byte("bar")))
	v, err := eng.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "bar", string(v))

	require.NoError(t, eng.Delete("foo"))
	_, err = eng.Get("foo")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetOnNeverWrittenKeyNeverCreatesAFile(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Get("nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 0, eng.cache.Resident())
}

func TestInvalidKeyRejectedBeforeTouchingAnyPage(t *testing.T) {
	eng := newTestEngine(t)

	err := eng.Put("has spaces", []byte("x"))
	assert.ErrorIs(t, err, common.ErrInvalidKey)

	err = eng.Put("", []byte("x"))
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

func TestValueTooLargeRejected(t *testing.T) {
	eng := newTestEngine(t)

	big := make([]byte, 32769)
	err := eng.Put("k", big)
	assert.ErrorIs(t, err, common.ErrValueTooLarge)
}

func TestDeleteAbsentKeyIsNotAnError(t *testing.T) {
	eng := newTestEngine(t)
	assert.NoError(t, eng.Delete("absent"))
}

func TestBulkPutInsertsEveryPair(t *testing.T) {
	eng := newTestEngine(t)

	pairs := []common.KV{
		{Key: "a1", Value: []byte("1")},
		{Key: "b2", Value: []byte("2")},
		{Key: "c3", Value: []byte("3")},
	}
	require.NoError(t, eng.BulkPut(pairs))

	for _, kv := range pairs {
		v, err := eng.Get(kv.Key)
		require.NoError(t, err)
		assert.Equal(t, kv.Value, v)
	}
}

func TestPageSplitsUnderPressureAndKeysRemainReachable(t *testing.T) {
	eng := newTestEngine(t)

	var keys []string
	for i := 0; i < 400; i++ {
		k := strings.Repeat("k", 1) + pad(i)
		keys = append(keys, k)
		require.NoError(t, eng.Put(k, []byte(strings.Repeat("v", 64))))
	}

	assert.Greater(t, eng.Stats().SplitCount, int64(0))

	for _, k := range keys {
		v, err := eng.Get(k)
		require.NoError(t, err, "key %s should still be reachable after splits", k)
		assert.Equal(t, strings.Repeat("v", 64), string(v))
	}
}

func TestRangeReturnsSortedSubsetAcrossSplitPages(t *testing.T) {
	eng := newTestEngine(t)

	for i := 0; i < 300; i++ {
		require.NoError(t, eng.Put(pad(i), []byte("v")))
	}
	require.Greater(t, eng.Stats().SplitCount, int64(0))

	results, err := eng.Range(pad(0), pad(299), 1000)
	require.NoError(t, err)
	require.Len(t, results, 300)
	for i := 1; i < len(results); i++ {
		assert.Less(t, results[i-1].Key, results[i].Key)
	}
}

func TestRangeTruncatesAtLimit(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < 50; i++ {
		require.NoError(t, eng.Put(pad(i), []byte("v")))
	}

	results, err := eng.Range(pad(0), pad(49), 10)
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestRangeWithLoGreaterThanHiIsEmpty(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Put("m", []byte("v")))

	results, err := eng.Range("z", "a", 100)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRangeNormalizesBoundsBeforeComparison(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Put("Foo", []byte("bar")))

	results, err := eng.Range("Foo", "Foo", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "foo", results[0].Key)
}

func TestRangeRejectsNonASCIIBound(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.Range("caf\xe9", "z", 10)
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Put("foo", []byte("bar")))
	require.NoError(t, eng.Close())

	_, err := eng.Get("foo")
	assert.ErrorIs(t, err, common.ErrClosed)
	assert.ErrorIs(t, eng.Put("foo", []byte("baz")), common.ErrClosed)
	assert.ErrorIs(t, eng.Delete("foo"), common.ErrClosed)
	_, err = eng.Range("a", "z", 10)
	assert.ErrorIs(t, err, common.ErrClosed)

	assert.NoError(t, eng.Close()) // idempotent
}

func pad(n int) string {
	return fmt.Sprintf("a%08d", n)
}
