package summary

import (
	"context"
	"slices"

	"kubecompat/lib/ledger"
)

// Summarizer describes what changed between two adjacent records of a
// ledger. a nil summary means there is nothing worth recording.
type Summarizer interface {
	Summarize(ctx context.Context, from, to ledger.VersionRecord) (map[string]any, error)
}

// Func adapts a Summarizer to ledger.ApplySummaries.
func Func(s Summarizer) ledger.SummarizeFunc {
	return s.Summarize
}

// DiffSummarizer reports the kubernetes versions and images that were added
// or removed between two records.
type DiffSummarizer struct{}

func difference(a, b []string) []string {
	out := []string{}
	for _, v := range a {
		if !slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func (DiffSummarizer) Summarize(_ context.Context, from, to ledger.VersionRecord) (map[string]any, error) {
	summary := map[string]any{}

	kubeAdded := ledger.SortKube(difference(to.Kube, from.Kube))
	kubeRemoved := ledger.SortKube(difference(from.Kube, to.Kube))
	if len(kubeAdded) > 0 {
		summary["kube_added"] = kubeAdded
	}
	if len(kubeRemoved) > 0 {
		summary["kube_removed"] = kubeRemoved
	}

	imagesAdded := difference(to.Images, from.Images)
	imagesRemoved := difference(from.Images, to.Images)
	slices.Sort(imagesAdded)
	slices.Sort(imagesRemoved)
	if len(imagesAdded) > 0 {
		summary["images_added"] = imagesAdded
	}
	if len(imagesRemoved) > 0 {
		summary["images_removed"] = imagesRemoved
	}

	if from.ChartVersion != "" && to.ChartVersion != "" && from.ChartVersion != to.ChartVersion {
		summary["chart_version_from"] = from.ChartVersion
	}

	if len(summary) == 0 {
		return nil, nil
	}
	summary["from"] = from.Version
	return summary, nil
}
