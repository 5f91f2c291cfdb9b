package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kubecompat/lib/fetch"
)

const page1 = `[
	{"tag_name": "v1.31.0-rc.0", "created_at": "2024-07-30T00:00:00Z"},
	{"tag_name": "v1.30.2", "created_at": "2024-06-12T00:00:00Z"},
	{"tag_name": "v1.29.6", "created_at": "2024-06-11T00:00:00Z"},
	{"tag_name": "v1.30.0", "created_at": "2024-04-17T00:00:00Z"},
	{"tag_name": "v1.30.0-beta.0", "created_at": "2024-03-01T00:00:00Z"},
	{"tag_name": "v1.29.0", "created_at": "2023-12-13T00:00:00Z"},
	{"tag_name": "no-timestamp"}
]`

const page2 = `[
	{"tag_name": "v1.28.0", "created_at": "2023-08-15T00:00:00Z"}
]`

func newServer(t testing.TB) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/kubernetes/kubernetes/releases", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Write([]byte(page1))
		case "2":
			w.Write([]byte(page2))
		default:
			w.Write([]byte(`[]`))
		}
	})
	mux.HandleFunc("/repos/fluxcd/flux2/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tag_name": "v2.3.0"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newClient(t testing.TB) Client {
	server := newServer(t)
	f, err := fetch.NewClient(fetch.Options{})
	require.NoError(t, err)
	return NewClient(f, server.URL)
}

func date(s string) time.Time {
	out, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return out
}

func TestReleases(t *testing.T) {
	client := newClient(t)

	tags, err := client.Releases(context.Background(), "kubernetes", "kubernetes")
	require.NoError(t, err)
	require.Len(t, tags, 7)
	require.Equal(t, "v1.31.0-rc.0", tags[0])

	latest, err := client.LatestRelease(context.Background(), "fluxcd", "flux2")
	require.NoError(t, err)
	require.Equal(t, "v2.3.0", latest)

	_, err = client.LatestRelease(context.Background(), "fluxcd", "missing")
	require.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestKubeReleaseInfo(t *testing.T) {
	client := newClient(t)

	info, err := client.KubeReleaseInfo(context.Background())
	require.NoError(t, err)

	var tags []string
	for _, r := range info {
		tags = append(tags, r.Tag)
	}
	require.Equal(t, []string{"v1.28.0", "v1.29.0", "v1.30.0"}, tags)
	require.Equal(t, date("2024-04-17"), info[2].CreatedAt)
}

func TestFindLastNReleases(t *testing.T) {
	releases := []Release{
		{Tag: "v1.27.0", CreatedAt: date("2023-04-11")},
		{Tag: "v1.28.0", CreatedAt: date("2023-08-15")},
		{Tag: "v1.29.0", CreatedAt: date("2023-12-13")},
		{Tag: "v1.30.0", CreatedAt: date("2024-04-17")},
	}

	tags := func(rs []Release) []string {
		out := []string{}
		for _, r := range rs {
			out = append(out, r.Tag)
		}
		return out
	}

	require.Equal(t, []string{"v1.27.0", "v1.28.0"}, tags(FindLastNReleases(releases, date("2022-01-01"), 2)))
	require.Equal(t, []string{"v1.27.0", "v1.28.0", "v1.29.0"}, tags(FindLastNReleases(releases, date("2024-01-01"), 3)))
	require.Equal(t, []string{"v1.28.0"}, tags(FindLastNReleases(releases, date("2023-09-01"), 1)))
	require.Equal(t, []string{"v1.29.0", "v1.30.0"}, tags(FindLastNReleases(releases, date("2025-01-01"), 2)))
	require.Empty(t, FindLastNReleases(releases, date("2025-01-01"), 0))
}
