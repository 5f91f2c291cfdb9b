package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newServer(t testing.TB, hits *int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.Write([]byte(`{"name":"flux","ua":"` + r.Header.Get("User-Agent") + `","token":"` + r.Header.Get("Authorization") + `"}`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchCachesSuccess(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{Timeout: time.Second * 5, CacheSize: 8})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := client.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)
	second, err := client.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestFetchCachedBodyIsCopied(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{CacheSize: 8})
	require.NoError(t, err)

	ctx := context.Background()
	first, err := client.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)
	expected := string(first)
	first[0] = 'X'

	second, err := client.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)
	second[1] = 'Y'

	third, err := client.Fetch(ctx, server.URL+"/ok")
	require.NoError(t, err)
	require.Equal(t, expected, string(third))
	require.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestFetchNotFoundIsNotCached(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{CacheSize: 8})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err = client.Fetch(ctx, server.URL+"/missing")
		require.ErrorIs(t, err, ErrNotFound)
	}
	require.EqualValues(t, 2, atomic.LoadInt64(&hits))
}

func TestFetchWithoutCache(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Fetch(context.Background(), server.URL+"/ok")
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestFetchJSONAndHeaders(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{
		UserAgent: "kubecompat-test",
		Headers:   map[string]string{"Authorization": "Bearer abc"},
	})
	require.NoError(t, err)

	var out struct {
		Name  string `json:"name"`
		UA    string `json:"ua"`
		Token string `json:"token"`
	}
	err = FetchJSON(context.Background(), client, server.URL+"/ok", &out)
	require.NoError(t, err)
	require.Equal(t, "flux", out.Name)
	require.Equal(t, "kubecompat-test", out.UA)
	require.Equal(t, "Bearer abc", out.Token)
}

func TestFetchRespectsCancelledContext(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	client, err := NewClient(Options{RequestsPerSecond: 0.001})
	require.NoError(t, err)

	// drain the single token so the next call has to wait
	_, err = client.Fetch(context.Background(), server.URL+"/ok")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Fetch(ctx, server.URL+"/ok")
	require.Error(t, err)
	require.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestFetchDumpsMessages(t *testing.T) {
	var hits int64
	server := newServer(t, &hits)

	dir := filepath.Join(t.TempDir(), "http")
	client, err := NewClient(Options{DumpDir: dir})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), server.URL+"/ok")
	require.NoError(t, err)
	_, err = client.Fetch(context.Background(), server.URL+"/missing")
	require.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
