package flux

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/htmlutil"
	"kubecompat/lib/ledger"
	"kubecompat/lib/scraper"
	"kubecompat/lib/versionutil"
)

var tracer = otel.Tracer("kubecompat/lib/scrapers/flux")

const (
	Name              = "flux"
	DefaultBaseURL    = "https://fluxcd.io/flux/installation/"
	HelmRepositoryURL = "https://fluxcd-community.github.io/helm-charts"
	ChartName         = "flux2"
)

type Scraper struct {
	// BaseURL is the installation page carrying the docs version dropdown.
	BaseURL string
}

func New() Scraper {
	return Scraper{BaseURL: DefaultBaseURL}
}

func (Scraper) Name() string {
	return Name
}

type docVersion struct {
	Version string
	URL     string
}

// normalizeDocVersion turns dropdown labels like "v2" or "v2.3" into full
// versions, other labels are returned unchanged.
func normalizeDocVersion(label string) string {
	version := strings.TrimPrefix(label, "v")
	parts := strings.Split(version, ".")
	for _, p := range parts {
		if p == "" || strings.Trim(p, "0123456789") != "" {
			return version
		}
	}
	switch len(parts) {
	case 1:
		return version + ".0.0"
	case 2:
		return version + ".0"
	}
	return version
}

// installationURL points a docs link at its installation page.
func installationURL(link *url.URL) string {
	full := link.String()
	if strings.Contains(strings.ToLower(full), "/installation/") {
		return full
	}
	if strings.Trim(link.Path, "/") == "" {
		return link.ResolveReference(&url.URL{Path: "flux/installation/"}).String()
	}
	return strings.TrimSuffix(full, "/") + "/installation/"
}

func getDocVersions(ctx context.Context, base *url.URL, doc *goquery.Document) []docVersion {
	dropdown := doc.Find("li.nav-item.dropdown.mr-4").First()
	items := dropdown.Find("div.dropdown-menu a.dropdown-item")

	seen := make(map[string]struct{})
	var versions []docVersion
	for _, anchor := range htmlutil.GetAnchors(ctx, base, items) {
		if !strings.HasPrefix(anchor.Name, "v") {
			continue
		}
		version := normalizeDocVersion(anchor.Name)
		if _, ok := seen[version]; ok {
			continue
		}
		seen[version] = struct{}{}

		link, err := url.Parse(anchor.Href)
		if err != nil {
			continue
		}
		versions = append(versions, docVersion{
			Version: version,
			URL:     installationURL(link),
		})
	}
	return versions
}

func cleanCell(value string) string {
	value = strings.ReplaceAll(value, ">=", "")
	value = strings.ReplaceAll(value, "and later", "")
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "v")
	value = strings.TrimRight(value, ". ")
	return value
}

func kubeMinor(value string) (string, bool) {
	v, err := versionutil.Parse(value)
	if err != nil {
		return "", false
	}
	return v.MajorMinor(), true
}

// parseKubeCell reads a comma separated list of kubernetes versions, an
// entry ending with "and later" is expanded up to the newest release.
func parseKubeCell(ctx context.Context, env scraper.Env, cell string) []string {
	var out []string
	for _, item := range strings.Split(cell, ",") {
		lower := strings.ToLower(strings.TrimSpace(item))
		cleaned := cleanCell(lower)
		if cleaned == "" {
			continue
		}
		minor, ok := kubeMinor(cleaned)
		if !ok {
			slog.WarnContext(ctx, "skipping invalid kubernetes version", "app", Name, "value", item)
			continue
		}

		if !strings.Contains(lower, "and later") {
			out = append(out, minor)
			continue
		}
		expanded, err := env.ExpandToCurrent(minor)
		if err != nil {
			slog.WarnContext(ctx, "could not expand kubernetes versions", "app", Name, "from", minor, "err", err)
			out = append(out, minor)
			continue
		}
		out = append(out, expanded...)
	}
	return out
}

func extractKubeVersions(ctx context.Context, env scraper.Env, table htmlutil.Table, version string) []string {
	kubeIdx := table.Column("kubernetes version")
	if kubeIdx < 0 {
		slog.WarnContext(ctx, "no kubernetes version column", "app", Name, "version", version)
		return nil
	}
	fluxIdx := table.Column("flux version")
	if fluxIdx < 0 {
		fluxIdx = 0
	}

	var kube []string
	for _, row := range table.Rows {
		if fluxIdx > 0 && cleanCell(row[fluxIdx]) != version {
			continue
		}
		for _, k := range parseKubeCell(ctx, env, row[kubeIdx]) {
			if !slices.Contains(kube, k) {
				kube = append(kube, k)
			}
		}
	}
	return kube
}

func hasKubeHeader(headers []string) bool {
	for _, h := range headers {
		if strings.Contains(h, "kubernetes version") {
			return true
		}
	}
	return false
}

func (s Scraper) scrapeVersion(ctx context.Context, env scraper.Env, v docVersion) ([]string, error) {
	body, err := env.Fetcher.Fetch(ctx, v.URL)
	if err != nil {
		return nil, err
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return nil, err
	}

	table, ok := htmlutil.FindTable(doc, hasKubeHeader)
	if !ok {
		return nil, fmt.Errorf("no compatibility table at %s", v.URL)
	}
	return extractKubeVersions(ctx, env, htmlutil.ParseTable(table), v.Version), nil
}

func (s Scraper) Scrape(ctx context.Context, env scraper.Env) (scraper.Result, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return scraper.Result{}, err
	}

	body, err := env.Fetcher.Fetch(ctx, s.BaseURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch installation page")
		return scraper.Result{}, fmt.Errorf("fetch flux installation page: %w", err)
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return scraper.Result{}, err
	}

	versions := getDocVersions(ctx, base, doc)
	if len(versions) == 0 {
		return scraper.Result{}, fmt.Errorf("no flux versions found at %s", s.BaseURL)
	}
	span.SetAttributes(attribute.Int("doc_versions", len(versions)))

	var records []ledger.VersionRecord
	for _, v := range versions {
		kube, err := s.scrapeVersion(ctx, env, v)
		if err != nil {
			slog.WarnContext(ctx, "skipping flux docs version", "version", v.Version, "url", v.URL, "err", err)
			continue
		}
		if len(kube) == 0 {
			slog.WarnContext(ctx, "no kubernetes versions found", "app", Name, "version", v.Version)
			continue
		}
		records = append(records, scraper.Record(v.Version, kube))
	}

	if len(records) == 0 {
		return scraper.Result{}, fmt.Errorf("no compatibility information found across %d flux versions", len(versions))
	}

	return scraper.Result{
		Versions:            ledger.Sort(records),
		HelmRepositoryURL:   HelmRepositoryURL,
		ChartName:           ChartName,
		UpdateChartVersions: true,
	}, nil
}
