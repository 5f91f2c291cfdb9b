package eol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"kubecompat/lib/fetch"
	"kubecompat/lib/ledger"
)

const cycles = `[
	{"cycle": "2.3", "eol": false},
	{"cycle": "2.2", "eol": "2024-11-30"},
	{"cycle": "2.1.2", "eol": "2024-06-01"},
	{"cycle": "2.1", "eol": "2024-08-30"},
	{"cycle": 2, "eol": "2025-01-01"}
]`

func TestFetchAndEnrich(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/flux.json" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(cycles))
	}))
	t.Cleanup(server.Close)

	f, err := fetch.NewClient(fetch.Options{})
	require.NoError(t, err)

	data, err := Fetch(context.Background(), f, server.URL+"/api", "flux")
	require.NoError(t, err)
	require.Len(t, data, 5)
	require.Equal(t, "2", data[4].Name())

	l := ledger.Ledger{Versions: []ledger.VersionRecord{
		{Version: "2.3.0"},
		{Version: "v2.2.1"},
		{Version: "2.1.2"},
		{Version: "2.1.0"},
		{Version: "garbage"},
	}}
	require.Equal(t, 3, Enrich(&l, data))
	require.Empty(t, l.Versions[0].EOLAt)
	require.Equal(t, "2024-11-30", l.Versions[1].EOLAt)
	require.Equal(t, "2024-06-01", l.Versions[2].EOLAt)
	require.Equal(t, "2024-08-30", l.Versions[3].EOLAt)
	require.Empty(t, l.Versions[4].EOLAt)

	_, err = Fetch(context.Background(), f, server.URL+"/api", "missing")
	require.ErrorIs(t, err, fetch.ErrNotFound)
}

func TestMatchCycleEdgeCases(t *testing.T) {
	_, ok := MatchCycle("", []Cycle{{Cycle: "1.0", EOL: "2020-01-01"}})
	require.False(t, ok)
	_, ok = MatchCycle("1.0.0", nil)
	require.False(t, ok)

	date, ok := MatchCycle("2", []Cycle{{Cycle: float64(2), EOL: "2025-01-01"}})
	require.True(t, ok)
	require.Equal(t, "2025-01-01", date)
}
