package ledgerstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"kubecompat/lib/ledger"
)

const fixture = `helm_repository_url: https://charts.jetstack.io
chart_name: cert-manager
maintainer_notes: keep me
versions:
  - version: 1.15.1
    kube: ["1.30", "1.29"]
    requirements: []
    incompatibilities: []
    summary:
      kube_added: ["1.30"]
    chart_version: v1.15.1
    images: [quay.io/jetstack/cert-manager-controller:v1.15.1]
  - version: 1.14.0
    kube: ["1.29"]
`

func TestLoadMissing(t *testing.T) {
	store := NewFileStore(t.TempDir())
	_, found, err := store.Load(context.Background(), "flux")
	require.NoError(t, err)
	require.False(t, found)
}

func TestLoadFixture(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert-manager.yaml"), []byte(fixture), 0644))

	store := NewFileStore(dir)
	l, found, err := store.Load(context.Background(), "cert-manager")
	require.NoError(t, err)
	require.True(t, found)

	require.Equal(t, "https://charts.jetstack.io", l.HelmRepositoryURL)
	require.Equal(t, "cert-manager", l.ChartName)
	require.Equal(t, "keep me", l.Extra["maintainer_notes"])
	require.Len(t, l.Versions, 2)
	require.Equal(t, []string{"1.30", "1.29"}, l.Versions[0].Kube)
	require.Equal(t, "v1.15.1", l.Versions[0].ChartVersion)
	require.NotNil(t, l.Versions[0].Summary)
	require.Nil(t, l.Versions[1].Summary)
}

func TestRoundTripPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	original, err := Decode([]byte(fixture))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "cert-manager", original))

	loaded, found, err := store.Load(ctx, "cert-manager")
	require.NoError(t, err)
	require.True(t, found)

	if diff := cmp.Diff(original, loaded, cmpopts.EquateEmpty()); diff != "" {
		t.Fatal(diff)
	}
}

func TestEncodeFlowStyleKube(t *testing.T) {
	out, err := Encode(ledger.Ledger{Versions: []ledger.VersionRecord{
		ledger.EnsureKeys(ledger.VersionRecord{Version: "2.1.0", Kube: []string{"1.28", "1.29"}}),
	}})
	require.NoError(t, err)

	rendered := string(out)
	require.Contains(t, rendered, `kube: ["1.29", "1.28"]`)
	require.Contains(t, rendered, "requirements: []")
	require.NotContains(t, rendered, "summary")
	require.NotContains(t, rendered, "chart_version")
}

func TestEncodeEmptyLedger(t *testing.T) {
	out, err := Encode(ledger.Ledger{})
	require.NoError(t, err)
	require.Equal(t, "versions: []\n", string(out))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, "flux", ledger.Ledger{}))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "flux.yaml", entries[0].Name())
}

func TestInvalidAppName(t *testing.T) {
	store := NewFileStore(t.TempDir())
	for _, name := range []string{"", "../etc/passwd", "a/b", ".hidden"} {
		err := store.Save(context.Background(), name, ledger.Ledger{})
		require.ErrorIs(t, err, ErrInvalidApp, name)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := context.Background()

	for _, app := range []string{"redpanda", "flux", "kserve"} {
		require.NoError(t, store.Save(ctx, app, ledger.Ledger{}))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))

	apps, err := store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"flux", "kserve", "redpanda"}, apps)

	missing, err := NewFileStore(filepath.Join(dir, "nope")).List(ctx)
	require.NoError(t, err)
	require.Empty(t, missing)
}

func TestLoadMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("versions: {oops"), 0644))

	_, _, err := NewFileStore(dir).Load(context.Background(), "bad")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "bad.yaml"))
}
