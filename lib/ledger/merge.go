package ledger

import (
	"log/slog"

	"kubecompat/lib/versionutil"
)

// EnsureKeys normalizes a freshly scraped record, kube versions are sorted
// descending and the passthrough lists default to empty.
func EnsureKeys(record VersionRecord) VersionRecord {
	out := record.clone()
	out.Kube = SortKube(out.Kube)
	if out.Kube == nil {
		out.Kube = []string{}
	}
	if out.Requirements == nil {
		out.Requirements = []any{}
	}
	if out.Incompatibilities == nil {
		out.Incompatibilities = []any{}
	}
	return out
}

// mergeKey identifies a version regardless of spelling, "v1.2" and "1.2.0"
// share a key. unparseable versions are keyed by their raw text.
func mergeKey(version string) string {
	if v, ok := versionutil.Validate(version); ok {
		return v.String()
	}
	return version
}

// Merge folds candidates into the existing records. a candidate replaces the
// existing record with the same version but inherits its summary, the
// result is sorted descending.
func Merge(existing, candidates []VersionRecord) []VersionRecord {
	byVersion := make(map[string]VersionRecord, len(existing)+len(candidates))
	order := make([]string, 0, len(existing)+len(candidates))

	for _, record := range existing {
		key := mergeKey(record.Version)
		if _, seen := byVersion[key]; !seen {
			order = append(order, key)
		}
		byVersion[key] = record.clone()
	}

	for _, candidate := range candidates {
		if _, err := versionutil.Parse(candidate.Version); err != nil {
			slog.Warn("merging record with unparseable version", "version", candidate.Version)
		}

		key := mergeKey(candidate.Version)
		merged := candidate.clone()
		prior, seen := byVersion[key]
		if seen && prior.Summary != nil {
			merged.Summary = prior.Summary
		}
		if !seen {
			order = append(order, key)
		}
		byVersion[key] = merged
	}

	out := make([]VersionRecord, 0, len(order))
	for _, key := range order {
		out = append(out, byVersion[key])
	}
	return Sort(out)
}
