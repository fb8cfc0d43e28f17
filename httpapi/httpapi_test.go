package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/triekv/common/testutil"
	"github.com/intellect4all/triekv/engine"
)

func newTestServer(t *testing.T, isReplica bool) http.Handler {
	eng, err := engine.New(engine.Config{DataDir: testutil.TempDir(t), IsReplica: isReplica})
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })

	srv, err := NewServer(eng, RolePublic)
	require.NoError(t, err)
	return srv
}

func TestPutThenGetRoundTrip(t *testing.T) {
	srv := newTestServer(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kv/foo", strings.NewReader("bar"))
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/kv/foo", nil)
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bar", w.Body.String())
}

func TestGetMissingKeyReturns404(t *testing.T) {
	srv := newTestServer(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/kv/missing", nil)
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutOnReplicaPublicPortIsRejected(t *testing.T) {
	srv := newTestServer(t, true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kv/foo", strings.NewReader("bar"))
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestBulkPutAppliesEveryPair(t *testing.T) {
	srv := newTestServer(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bulk", strings.NewReader(`{"a":"1","b":"2"}`))
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/kv/a", nil)
	srv.ServeHTTP(w, req)
	assert.Equal(t, "1", w.Body.String())
}

func TestRangeReturnsJSONObject(t *testing.T) {
	srv := newTestServer(t, false)

	for _, k := range []string{"k1", "k2", "k3"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/kv/"+k, strings.NewReader("v"))
		srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/bulk/range?start_key=k1&end_key=k3", nil)
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"k1":"v"`)
	assert.Contains(t, w.Body.String(), `"k3":"v"`)
}

func TestRangeNormalizesQueryBounds(t *testing.T) {
	srv := newTestServer(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/kv/Foo", strings.NewReader("bar"))
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/bulk/range?start_key=Foo&end_key=Foo", nil)
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"foo":"bar"`)
}

func TestInvalidKeyReturns400(t *testing.T) {
	srv := newTestServer(t, false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/kv/has%20space", nil)
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
