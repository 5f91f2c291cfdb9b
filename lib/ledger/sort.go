package ledger

import (
	"slices"
	"strings"

	"kubecompat/lib/versionutil"
)

// compareVersionStrings orders versions descending, anything that does not
// parse sorts after every parseable version and lexically among itself.
func compareVersionStrings(a, b string) int {
	va, erra := versionutil.Parse(a)
	vb, errb := versionutil.Parse(b)
	switch {
	case erra != nil && errb != nil:
		return strings.Compare(a, b)
	case erra != nil:
		return 1
	case errb != nil:
		return -1
	}
	return vb.Compare(va)
}

func compareRecords(a, b VersionRecord) int {
	if c := compareVersionStrings(a.Version, b.Version); c != 0 {
		return c
	}
	switch {
	case a.ChartVersion == "" && b.ChartVersion == "":
		return 0
	case a.ChartVersion == "":
		return 1
	case b.ChartVersion == "":
		return -1
	}
	return compareVersionStrings(a.ChartVersion, b.ChartVersion)
}

// Sort orders records by version descending, ties are broken by chart
// version descending with chart-less records last. the sort is stable and
// works on a copy.
func Sort(records []VersionRecord) []VersionRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, compareRecords)
	return out
}

// SortKube orders kubernetes minor versions descending.
func SortKube(kube []string) []string {
	out := slices.Clone(kube)
	slices.SortStableFunc(out, func(a, b string) int {
		return versionutil.CompareKube(b, a)
	})
	return out
}
