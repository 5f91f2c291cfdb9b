package ledger

import (
	"log/slog"
	"slices"

	"kubecompat/lib/versionutil"
)

func sameKubeSet(a map[string]struct{}, kube []string) bool {
	b := kubeSet(kube)
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func kubeSet(kube []string) map[string]struct{} {
	set := make(map[string]struct{}, len(kube))
	for _, k := range kube {
		set[k] = struct{}{}
	}
	return set
}

// Reduce collapses runs of patch releases that share a major, minor and
// kube set into the oldest record of the run. records are scanned oldest
// first, the oldest and the newest valid records are always kept and
// records with invalid versions are dropped. output is sorted descending.
func Reduce(records []VersionRecord) []VersionRecord {
	sorted := Sort(records)

	parsed := make([]versionutil.Version, len(sorted))
	valid := make([]bool, len(sorted))
	newest := -1
	for i, record := range sorted {
		v, ok := versionutil.Validate(record.Version)
		if !ok {
			slog.Warn("dropping record with invalid version", "version", record.Version)
			continue
		}
		parsed[i] = v
		valid[i] = true
		if newest < 0 {
			newest = i
		}
	}

	var (
		kept       []VersionRecord
		haveCur    bool
		curMajor   int
		curMinor   int
		curKubeSet map[string]struct{}
	)

	for i := len(sorted) - 1; i >= 0; i-- {
		if !valid[i] {
			continue
		}
		record := sorted[i]
		v := parsed[i]

		changed := !haveCur ||
			curMajor != v.Major ||
			curMinor != v.Minor ||
			!sameKubeSet(curKubeSet, record.Kube)
		if !changed && i != newest {
			continue
		}

		haveCur = true
		curMajor = v.Major
		curMinor = v.Minor
		curKubeSet = kubeSet(record.Kube)

		out := record.clone()
		out.Version = v.String()
		if out.ChartVersion == "" {
			out.Images = nil
		}
		// "1.2" and "1.2.0" normalize to the same version, keep one row
		if n := len(kept); n > 0 && kept[n-1].Version == out.Version {
			kept[n-1] = out
			continue
		}
		kept = append(kept, out)
	}

	slices.Reverse(kept)
	return kept
}
