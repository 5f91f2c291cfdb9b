package kserve

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"kubecompat/lib/fetch"
	"kubecompat/lib/github"
	"kubecompat/lib/ledger"
	"kubecompat/lib/scraper"
	"kubecompat/lib/versionutil"
)

const archivePage = `<html><body>
<h1>Kubernetes Deployment Installation Guide</h1>
<h2 id="recommended-version-matrix">Recommended Version Matrix</h2>
<table>
  <tr><th>Kubernetes Version</th><th>Recommended Istio Version</th></tr>
  <tr><td>1.22</td><td>1.11, 1.12</td></tr>
  <tr><td>v1.21.x</td><td>1.10, 1.11</td></tr>
  <tr><td>1.22</td><td>1.13</td></tr>
</table>
</body></html>`

const lsRemote = "aaa\trefs/tags/v0.10.2\n" +
	"bbb\trefs/tags/v0.13.0-rc0\n" +
	"ccc\trefs/tags/v0.13.1\n" +
	"ddd\trefs/tags/v0.14.0\n" +
	"eee\trefs/tags/v0.14.1\n" +
	"eee\trefs/tags/v0.14.1^{}\n" +
	"fff\trefs/heads/master\n"

type fakeRunner struct {
	out string
	err error
}

func (f fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	return []byte(f.out), f.err
}

func newEnv(t testing.TB, runner fakeRunner) (scraper.Env, Endpoints) {
	mux := http.NewServeMux()
	mux.HandleFunc("/versions.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["0.14", "0.13"]`))
	})
	mux.HandleFunc("/archive/versions.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"version": "0.10", "title": "0.10"}, {"title": "no version"}]`))
	})
	mux.HandleFunc("/docs/version-0.14/kubernetes-deployment.md", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("## Prerequisites\n\n- **Kubernetes**: Version 1.29+\n"))
	})
	mux.HandleFunc("/docs/version-0.13/kubernetes-deployment.md", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Install on a Kubernetes cluster (v1.28+) with istio."))
	})
	mux.HandleFunc("/archive/0.10/admin/kubernetes_deployment/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(archivePage))
	})
	mux.HandleFunc("/repos/kserve/kserve/releases", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[
			{"tag_name": "v0.14.0", "created_at": "2024-10-01T00:00:00Z"},
			{"tag_name": "v0.13.0", "created_at": "2024-05-01T00:00:00Z"}
		]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	f, err := fetch.NewClient(fetch.Options{})
	require.NoError(t, err)

	env := scraper.Env{
		Fetcher:     f,
		GitHub:      github.NewClient(f, server.URL),
		Runner:      runner,
		KubeVersion: "1.30",
		ExpandMode:  versionutil.ExpandContinuous,
	}
	endpoints := Endpoints{
		WebsiteVersionsURL:   server.URL + "/versions.json",
		ArchiveVersionsURL:   server.URL + "/archive/versions.json",
		VersionedDocURL:      server.URL + "/docs/version-%s/kubernetes-deployment.md",
		ArchiveDeploymentURL: server.URL + "/archive/%s/admin/kubernetes_deployment/",
		GitURL:               "https://example.com/kserve.git",
		Owner:                "kserve",
		Repo:                 "kserve",
	}
	return env, endpoints
}

func summarize(records []ledger.VersionRecord) [][]string {
	var out [][]string
	for _, r := range records {
		row := append([]string{r.Version, r.ChartVersion}, r.Kube...)
		out = append(out, row)
	}
	return out
}

func TestScrapeWithGitTags(t *testing.T) {
	env, endpoints := newEnv(t, fakeRunner{out: lsRemote})

	result, err := Scraper{Endpoints: endpoints}.Scrape(context.Background(), env)
	require.NoError(t, err)

	expected := [][]string{
		{"0.14.1", "v0.14.1", "1.30", "1.29"},
		{"0.13.1", "v0.13.1", "1.30", "1.29", "1.28"},
		{"0.10.2", "v0.10.2", "1.22", "1.21"},
	}
	if diff := cmp.Diff(expected, summarize(result.Versions)); diff != "" {
		t.Fatal(diff)
	}
	require.Empty(t, result.HelmRepositoryURL)
}

func TestScrapeFallsBackToReleases(t *testing.T) {
	env, endpoints := newEnv(t, fakeRunner{err: errors.New("git: not found")})

	result, err := Scraper{Endpoints: endpoints}.Scrape(context.Background(), env)
	require.NoError(t, err)

	expected := [][]string{
		{"0.14.0", "v0.14.0", "1.30", "1.29"},
		{"0.13.0", "v0.13.0", "1.30", "1.29", "1.28"},
		{"0.10.0", "v0.10.0", "1.22", "1.21"},
	}
	if diff := cmp.Diff(expected, summarize(result.Versions)); diff != "" {
		t.Fatal(diff)
	}
}

func TestScrapeRequiresKubeVersion(t *testing.T) {
	env, endpoints := newEnv(t, fakeRunner{})
	env.KubeVersion = ""
	_, err := Scraper{Endpoints: endpoints}.Scrape(context.Background(), env)
	require.Error(t, err)
}

func TestParseMinKubeVersion(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
		ok       bool
	}{
		{"- **Kubernetes**: Version 1.29+", "1.29", true},
		{"a Kubernetes cluster (v1.28+)", "1.28", true},
		{"Kubernetes: v1.27+", "1.27", true},
		{"kubernetes : 1.26+", "1.26", true},
		{"Kubernetes 1.25", "", false},
	}
	for _, tc := range testCases {
		v, ok := ParseMinKubeVersion(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		require.Equal(t, tc.expected, v, tc.in)
	}
}

func TestParseTags(t *testing.T) {
	var tags []string
	for _, v := range ParseTags(lsRemote) {
		tags = append(tags, v.String())
	}
	require.Equal(t, []string{"0.14.1", "0.14.0", "0.13.1", "0.10.2"}, tags)
}

func TestLatestPatch(t *testing.T) {
	releases := ParseTags(lsRemote)
	require.Equal(t, "0.14.1", latestPatch(releases, "0.14"))
	require.Equal(t, "0.11.0", latestPatch(releases, "0.11"))
	require.Equal(t, "latest", latestPatch(releases, "latest"))
}
