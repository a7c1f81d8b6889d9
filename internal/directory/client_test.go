package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/library-lending/internal/domain"
	"github.com/cimillas/library-lending/internal/retry"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func fastRetry() Option {
	return WithRetry(retry.WithBaseDelay(time.Millisecond), retry.WithMaxAttempts(3))
}

func TestClient_Exists(t *testing.T) {
	t.Parallel()

	var gotAuth atomic.Value
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/students/exists/5":
			_, _ = w.Write([]byte("true"))
		case "/api/students/exists/6":
			_, _ = w.Write([]byte("false"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	c := NewClient(srv.URL, WithServiceToken("svc"), fastRetry())

	ok, err := c.Exists(WithBearer(context.Background(), "caller"), 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bearer caller", gotAuth.Load())

	ok, err = c.Exists(context.Background(), 6)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Bearer svc", gotAuth.Load())

	ok, err = c.Exists(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_FindIDByEmail(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/students/by-email/anna@uni.edu" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":5,"name":"Anna"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	c := NewClient(srv.URL, fastRetry())

	id, err := c.FindIDByEmail(context.Background(), "anna@uni.edu")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = c.FindIDByEmail(context.Background(), "ghost@uni.edu")
	require.ErrorIs(t, err, domain.ErrStudentNotFound)
}

func TestClient_UnavailableIsRetriedThenSurfaced(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	c := NewClient(srv.URL, fastRetry())

	_, err := c.Exists(context.Background(), 5)
	require.ErrorIs(t, err, domain.ErrDirectoryUnavailable)
	assert.NotErrorIs(t, err, domain.ErrStudentNotFound)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("true"))
	})
	c := NewClient(srv.URL, fastRetry())

	ok, err := c.Exists(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, fastRetry(), WithTimeout(200*time.Millisecond))
	_, err := c.FindIDByEmail(context.Background(), "anna@uni.edu")
	require.ErrorIs(t, err, domain.ErrDirectoryUnavailable)
}
