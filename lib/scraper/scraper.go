package scraper

// scrapers are read-only and mostly stateless, the output depends solely on
// the upstream pages and the Env they are given.

// each scraper generally has this structure:
// 1. fetch the index of known versions (docs dropdown, versions.json, a matrix page).
// 2. for each version, fetch the page describing its kubernetes support.
// 3. make assertions on the page (expected table, expected headers).
// 4. transform table cells or markdown into candidate records.
// 5. hand the candidates back, persistence is not the scraper's concern.

// a page that cannot be fetched aborts the source it belongs to, a row that
// cannot be parsed is logged and skipped.

import (
	"context"

	"kubecompat/lib/executil"
	"kubecompat/lib/fetch"
	"kubecompat/lib/github"
	"kubecompat/lib/ledger"
	"kubecompat/lib/versionutil"
)

// Env is everything a scraper may reach out to.
type Env struct {
	Fetcher fetch.Fetcher
	GitHub  github.Client
	Runner  executil.Runner
	// KubeVersion is the newest kubernetes minor ("1.30"), open ended
	// ranges like "1.27 and later" are expanded up to it.
	KubeVersion string
	ExpandMode  versionutil.ExpandMode
}

// Expand lists the kubernetes minor versions from start to end inclusive.
func (e Env) Expand(start, end string) ([]string, error) {
	return versionutil.ExpandKubeVersions(start, end, e.ExpandMode)
}

// ExpandToCurrent expands start up to the newest kubernetes minor.
func (e Env) ExpandToCurrent(start string) ([]string, error) {
	return e.Expand(start, e.KubeVersion)
}

// Result holds the candidate records of one scrape together with the
// ledger metadata the source knows about.
type Result struct {
	Versions []ledger.VersionRecord

	// empty values leave the ledger's metadata untouched
	HelmRepositoryURL string
	ChartName         string

	// ResetVersions discards the stored records before merging.
	ResetVersions bool
	// UpdateChartVersions fills missing chart versions from the helm
	// repository index after merging.
	UpdateChartVersions bool
}

type Scraper interface {
	Name() string
	Scrape(ctx context.Context, env Env) (Result, error)
}

// Record builds a candidate with empty requirements and incompatibilities.
func Record(version string, kube []string) ledger.VersionRecord {
	return ledger.EnsureKeys(ledger.VersionRecord{
		Version: version,
		Kube:    kube,
	})
}
