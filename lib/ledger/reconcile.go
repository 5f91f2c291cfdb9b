package ledger

import (
	"context"
	"log/slog"
)

// Reconcile merges candidates into the existing ledger and reduces the
// result. stored and scraped records are both normalized with EnsureKeys.
// the existing ledger is not modified, metadata is carried over.
func Reconcile(existing Ledger, candidates []VersionRecord) Ledger {
	stored := make([]VersionRecord, len(existing.Versions))
	for i, r := range existing.Versions {
		stored[i] = EnsureKeys(r)
	}
	normalized := make([]VersionRecord, len(candidates))
	for i, c := range candidates {
		normalized[i] = EnsureKeys(c)
	}

	out := existing
	out.Versions = Reduce(Merge(stored, normalized))
	if out.Versions == nil {
		out.Versions = []VersionRecord{}
	}
	return out
}

// SummarizeFunc describes the change from one record to the next newer one,
// returning nil when there is nothing to say.
type SummarizeFunc func(ctx context.Context, from, to VersionRecord) (map[string]any, error)

// ApplySummaries fills in missing summaries for every record that has an
// older neighbour. existing summaries are left alone, failures are logged
// and skipped. it returns how many summaries were added.
func ApplySummaries(ctx context.Context, l *Ledger, summarize SummarizeFunc) int {
	added := 0
	for i := 0; i+1 < len(l.Versions); i++ {
		to := l.Versions[i]
		from := l.Versions[i+1]
		if to.Summary != nil {
			continue
		}

		summary, err := summarize(ctx, from, to)
		if err != nil {
			slog.WarnContext(ctx, "failed to summarize version", "from", from.Version, "to", to.Version, "err", err)
			continue
		}
		if summary == nil {
			continue
		}
		l.Versions[i].Summary = summary
		added++
	}
	return added
}
