package helmindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"kubecompat/lib/fetch"
	"kubecompat/lib/ledger"
)

const index = `apiVersion: v1
entries:
  flux2:
  - appVersion: 2.3.0
    version: 2.13.0
  - appVersion: v2.3.0
    version: 2.12.4
  - appVersion: 2.2.3
    version: v2.12.2
  - appVersion: ""
    version: 0.0.1
  redpanda:
  - appVersion: v24.2.1
    version: 5.9.1
  - appVersion: v24.2.1
    version: 5.9.0
  - appVersion: v24.1.9
    version: 5.8.12
  - appVersion: v24.2.0
    version: 5.9.2-rc1
generated: "2024-07-01T00:00:00Z"
`

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := f[url]
	if !ok {
		return nil, fetch.ErrNotFound
	}
	return []byte(body), nil
}

func TestAppChartVersions(t *testing.T) {
	parsed, err := Parse([]byte(index))
	require.NoError(t, err)

	mapping, err := parsed.AppChartVersions("flux2")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"2.3.0": "2.13.0",
		"2.2.3": "2.12.2",
	}, mapping)

	_, err = parsed.AppChartVersions("missing")
	require.ErrorIs(t, err, ErrChartNotFound)
}

func TestLatestAppPerMinor(t *testing.T) {
	parsed, err := Parse([]byte(index))
	require.NoError(t, err)

	latest, err := parsed.LatestAppPerMinor("redpanda")
	require.NoError(t, err)
	require.Len(t, latest, 2)

	require.Equal(t, "24.2.1", latest["24.2"].Version.String())
	require.Equal(t, "5.9.1", latest["24.2"].ChartVersion)
	require.Equal(t, "24.1.9", latest["24.1"].Version.String())
	require.Equal(t, "5.8.12", latest["24.1"].ChartVersion)
}

func TestUpdateLedger(t *testing.T) {
	f := fakeFetcher{"https://charts.example.com/index.yaml": index}

	l := ledger.Ledger{
		HelmRepositoryURL: "https://charts.example.com/",
		ChartName:         "flux2",
		Versions: []ledger.VersionRecord{
			{Version: "2.3.0"},
			{Version: "2.2.3", ChartVersion: "9.9.9"},
			{Version: "2.1.0"},
		},
	}

	changed, err := UpdateLedger(context.Background(), f, &l, "ignored")
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.Equal(t, "2.13.0", l.Versions[0].ChartVersion)
	require.Equal(t, "9.9.9", l.Versions[1].ChartVersion)
	require.Empty(t, l.Versions[2].ChartVersion)

	_, err = UpdateLedger(context.Background(), f, &ledger.Ledger{}, "flux2")
	require.Error(t, err)

	_, err = UpdateLedger(context.Background(), f, &ledger.Ledger{HelmRepositoryURL: "https://missing.example.com"}, "flux2")
	require.ErrorIs(t, err, fetch.ErrNotFound)
}
