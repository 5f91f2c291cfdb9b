package summary

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"kubecompat/lib/ledger"
)

func TestDiffSummarizer(t *testing.T) {
	testCases := []struct {
		name     string
		from     ledger.VersionRecord
		to       ledger.VersionRecord
		expected map[string]any
	}{
		{
			name:     "nothing changed",
			from:     ledger.VersionRecord{Version: "1.0.0", Kube: []string{"1.29"}},
			to:       ledger.VersionRecord{Version: "1.0.1", Kube: []string{"1.29"}},
			expected: nil,
		},
		{
			name: "kube range moved",
			from: ledger.VersionRecord{Version: "1.0.0", Kube: []string{"1.28", "1.27"}},
			to:   ledger.VersionRecord{Version: "1.1.0", Kube: []string{"1.30", "1.29", "1.28"}},
			expected: map[string]any{
				"from":         "1.0.0",
				"kube_added":   []string{"1.30", "1.29"},
				"kube_removed": []string{"1.27"},
			},
		},
		{
			name: "images and chart",
			from: ledger.VersionRecord{
				Version:      "2.2.0",
				Kube:         []string{"1.29"},
				ChartVersion: "2.12.0",
				Images:       []string{"ghcr.io/fluxcd/helm-controller:v0.37.0", "ghcr.io/fluxcd/source-controller:v1.2.0"},
			},
			to: ledger.VersionRecord{
				Version:      "2.3.0",
				Kube:         []string{"1.29"},
				ChartVersion: "2.13.0",
				Images:       []string{"ghcr.io/fluxcd/source-controller:v1.3.0", "ghcr.io/fluxcd/helm-controller:v0.37.0"},
			},
			expected: map[string]any{
				"from":               "2.2.0",
				"chart_version_from": "2.12.0",
				"images_added":       []string{"ghcr.io/fluxcd/source-controller:v1.3.0"},
				"images_removed":     []string{"ghcr.io/fluxcd/source-controller:v1.2.0"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			summary, err := DiffSummarizer{}.Summarize(context.Background(), tc.from, tc.to)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, summary); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestFuncWithApplySummaries(t *testing.T) {
	l := ledger.Ledger{Versions: []ledger.VersionRecord{
		{Version: "1.2.0", Kube: []string{"1.30"}},
		{Version: "1.1.0", Kube: []string{"1.29"}, Summary: map[string]any{"note": "kept"}},
		{Version: "1.0.0", Kube: []string{"1.28"}},
	}}

	added := ledger.ApplySummaries(context.Background(), &l, Func(DiffSummarizer{}))
	require.Equal(t, 1, added)
	require.Equal(t, "1.1.0", l.Versions[0].Summary["from"])
	require.Equal(t, map[string]any{"note": "kept"}, l.Versions[1].Summary)
	require.Nil(t, l.Versions[2].Summary)
}
