package helmindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"kubecompat/lib/fetch"
	"kubecompat/lib/ledger"
	"kubecompat/lib/versionutil"
)

var tracer = otel.Tracer("kubecompat/lib/helmindex")

var ErrChartNotFound = errors.New("chart not found in index")

type Entry struct {
	Version    string `yaml:"version"`
	AppVersion string `yaml:"appVersion"`
}

// Index is the subset of a helm repository index.yaml this tool reads.
type Index struct {
	Entries map[string][]Entry `yaml:"entries"`
}

func Parse(contents []byte) (Index, error) {
	var index Index
	err := yaml.Unmarshal(contents, &index)
	if err != nil {
		return Index{}, err
	}
	return index, nil
}

// IndexURL returns the location of index.yaml for a repository.
func IndexURL(repoURL string) string {
	return strings.TrimSuffix(repoURL, "/") + "/index.yaml"
}

func Fetch(ctx context.Context, f fetch.Fetcher, repoURL string) (Index, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("repo", repoURL))

	body, err := f.Fetch(ctx, IndexURL(repoURL))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch index")
		return Index{}, err
	}
	if len(body) == 0 {
		return Index{}, fmt.Errorf("empty index at %s", repoURL)
	}

	index, err := Parse(body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse index")
		return Index{}, fmt.Errorf("parse index %s: %w", repoURL, err)
	}
	return index, nil
}

func (i Index) chart(name string) ([]Entry, error) {
	entries := i.Entries[name]
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrChartNotFound, name)
	}
	return entries, nil
}

// AppChartVersions maps every app version in the chart's entries to its chart
// version, a leading "v" is dropped from both. the first entry listed for an
// app version wins.
func (i Index) AppChartVersions(chart string) (map[string]string, error) {
	entries, err := i.chart(chart)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		app := strings.TrimPrefix(e.AppVersion, "v")
		version := strings.TrimPrefix(e.Version, "v")
		if app == "" {
			continue
		}
		if _, ok := out[app]; ok {
			continue
		}
		out[app] = version
	}
	return out, nil
}

// AppRelease is the newest app version of a major.minor line together with
// the newest chart shipping it.
type AppRelease struct {
	Version      versionutil.Version
	ChartVersion string
}

// LatestAppPerMinor keys the newest stable app version of every major.minor
// line by "major.minor". among entries of the same app version the highest
// valid chart version wins.
func (i Index) LatestAppPerMinor(chart string) (map[string]AppRelease, error) {
	entries, err := i.chart(chart)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		app   versionutil.Version
		chart versionutil.Version
	}
	latest := make(map[string]candidate)

	for _, e := range entries {
		app, ok := versionutil.Validate(e.AppVersion)
		if !ok {
			continue
		}
		chartVersion, _ := versionutil.Validate(e.Version)

		key := app.MajorMinor()
		current, seen := latest[key]
		switch {
		case !seen || app.Compare(current.app) > 0:
			latest[key] = candidate{app: app, chart: chartVersion}
		case app.Compare(current.app) == 0 && !chartVersion.IsZero():
			if current.chart.IsZero() || chartVersion.Compare(current.chart) > 0 {
				current.chart = chartVersion
				latest[key] = current
			}
		}
	}

	out := make(map[string]AppRelease, len(latest))
	for key, c := range latest {
		release := AppRelease{Version: c.app}
		if !c.chart.IsZero() {
			release.ChartVersion = c.chart.String()
		}
		out[key] = release
	}
	return out, nil
}

// ApplyChartVersions fills chart_version on records that lack one, it
// returns how many records changed.
func ApplyChartVersions(l *ledger.Ledger, appToChart map[string]string) int {
	changed := 0
	for idx := range l.Versions {
		record := &l.Versions[idx]
		if record.ChartVersion != "" {
			continue
		}
		chart, ok := appToChart[record.Version]
		if !ok || chart == "" {
			continue
		}
		record.ChartVersion = chart
		changed++
	}
	return changed
}

// UpdateLedger fetches the ledger's helm index and fills missing chart
// versions. chartName is used when the ledger does not name its chart.
func UpdateLedger(ctx context.Context, f fetch.Fetcher, l *ledger.Ledger, chartName string) (int, error) {
	if l.HelmRepositoryURL == "" {
		return 0, fmt.Errorf("ledger has no helm_repository_url")
	}
	if l.ChartName != "" {
		chartName = l.ChartName
	}

	index, err := Fetch(ctx, f, l.HelmRepositoryURL)
	if err != nil {
		return 0, err
	}
	mapping, err := index.AppChartVersions(chartName)
	if err != nil {
		return 0, err
	}

	changed := ApplyChartVersions(l, mapping)
	slog.DebugContext(ctx, "applied chart versions", "chart", chartName, "changed", changed)
	return changed, nil
}
