package kserve

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/fetch"
	"kubecompat/lib/htmlutil"
	"kubecompat/lib/ledger"
	"kubecompat/lib/scraper"
	"kubecompat/lib/versionutil"
)

var tracer = otel.Tracer("kubecompat/lib/scrapers/kserve")

const Name = "kserve"

// Endpoints are the upstream locations the scraper reads, the doc urls take
// the docs version through a single %s.
type Endpoints struct {
	WebsiteVersionsURL   string
	ArchiveVersionsURL   string
	VersionedDocURL      string
	ArchiveDeploymentURL string
	GitURL               string
	Owner                string
	Repo                 string
}

var DefaultEndpoints = Endpoints{
	WebsiteVersionsURL:   "https://raw.githubusercontent.com/kserve/website/main/versions.json",
	ArchiveVersionsURL:   "https://kserve.github.io/archive/versions.json",
	VersionedDocURL:      "https://raw.githubusercontent.com/kserve/website/main/versioned_docs/version-%s/admin-guide/kubernetes-deployment.md",
	ArchiveDeploymentURL: "https://kserve.github.io/archive/%s/admin/kubernetes_deployment/",
	GitURL:               "https://github.com/kserve/kserve.git",
	Owner:                "kserve",
	Repo:                 "kserve",
}

type Scraper struct {
	Endpoints Endpoints
}

func New() Scraper {
	return Scraper{Endpoints: DefaultEndpoints}
}

func (Scraper) Name() string {
	return Name
}

func (s Scraper) currentDocVersions(ctx context.Context, f fetch.Fetcher) ([]string, error) {
	var raw []any
	err := fetch.FetchJSON(ctx, f, s.Endpoints.WebsiteVersionsURL, &raw)
	if err != nil {
		return nil, err
	}
	return stringValues(raw, ""), nil
}

func (s Scraper) archiveDocVersions(ctx context.Context, f fetch.Fetcher) ([]string, error) {
	var raw []any
	err := fetch.FetchJSON(ctx, f, s.Endpoints.ArchiveVersionsURL, &raw)
	if err != nil {
		return nil, err
	}
	return stringValues(raw, "version"), nil
}

// stringValues flattens a json list of scalars, objects contribute the
// value under key.
func stringValues(raw []any, key string) []string {
	var out []string
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			if key == "" {
				continue
			}
			item = obj[key]
		}

		var value string
		switch v := item.(type) {
		case string:
			value = v
		case float64:
			value = strconv.FormatFloat(v, 'f', -1, 64)
		}
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func compareDocVersions(a, b string) int {
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

// docVersions returns every known docs version newest first, together with
// the set of versions that only live in the archive.
func (s Scraper) docVersions(ctx context.Context, f fetch.Fetcher) ([]string, map[string]struct{}) {
	current, err := s.currentDocVersions(ctx, f)
	if err != nil {
		slog.WarnContext(ctx, "failed to read kserve website versions", "err", err)
	}
	archive, err := s.archiveDocVersions(ctx, f)
	if err != nil {
		slog.WarnContext(ctx, "failed to read kserve archive versions", "err", err)
	}

	archived := make(map[string]struct{}, len(archive))
	for _, v := range archive {
		archived[v] = struct{}{}
	}

	var combined []string
	for _, v := range slices.Concat(current, archive) {
		if !slices.Contains(combined, v) {
			combined = append(combined, v)
		}
	}
	slices.SortStableFunc(combined, compareDocVersions)
	return combined, archived
}

var minKubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\*\*Kubernetes\*\*:\s*Version\s*v?(\d+\.\d+)\+`),
	regexp.MustCompile(`(?i)Kubernetes\s+cluster\s*\(v?(\d+\.\d+)\+\)`),
	regexp.MustCompile(`(?i)Kubernetes\s*:\s*v?(\d+\.\d+)\+`),
}

// ParseMinKubeVersion finds the minimum supported kubernetes version stated
// in a deployment guide.
func ParseMinKubeVersion(markdown string) (string, bool) {
	for _, pattern := range minKubePatterns {
		match := pattern.FindStringSubmatch(markdown)
		if match != nil {
			return match[1], true
		}
	}
	return "", false
}

var kubeMinorRegex = regexp.MustCompile(`v?(\d+)\.(\d+)`)

// normalizeKubeMinor extracts "major.minor" from free text, dropping leading
// zeros.
func normalizeKubeMinor(value string) (string, bool) {
	match := kubeMinorRegex.FindStringSubmatch(strings.TrimSpace(value))
	if match == nil {
		return "", false
	}
	major, err := strconv.Atoi(match[1])
	if err != nil {
		return "", false
	}
	minor, err := strconv.Atoi(match[2])
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d.%d", major, minor), true
}

func (s Scraper) archiveKubeVersions(ctx context.Context, f fetch.Fetcher, docVersion string) ([]string, error) {
	url := fmt.Sprintf(s.Endpoints.ArchiveDeploymentURL, docVersion)
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return nil, err
	}

	table, ok := htmlutil.TableAfterHeading(doc, "#recommended-version-matrix", "")
	if !ok {
		table, ok = htmlutil.TableAfterHeading(doc, "h1, h2, h3, h4", "recommended version matrix")
	}
	if !ok {
		return nil, fmt.Errorf("no recommended version matrix at %s", url)
	}

	var kube []string
	for _, row := range htmlutil.ParseTable(table).Rows {
		if len(row) == 0 {
			continue
		}
		minor, ok := normalizeKubeMinor(row[0])
		if ok && !slices.Contains(kube, minor) {
			kube = append(kube, minor)
		}
	}
	return kube, nil
}

func (s Scraper) currentKubeVersions(ctx context.Context, env scraper.Env, docVersion string) ([]string, error) {
	url := fmt.Sprintf(s.Endpoints.VersionedDocURL, docVersion)
	body, err := env.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	minKube, ok := ParseMinKubeVersion(string(body))
	if !ok {
		return nil, fmt.Errorf("no minimum kubernetes version in %s", url)
	}
	return env.ExpandToCurrent(minKube)
}

// releases lists stable release versions newest first, read from the git
// tags and falling back to the GitHub releases api.
func (s Scraper) releases(ctx context.Context, env scraper.Env) []versionutil.Version {
	var versions []versionutil.Version
	if env.Runner != nil {
		out, err := env.Runner.Run(ctx, "git", "ls-remote", "--tags", s.Endpoints.GitURL)
		if err != nil {
			slog.WarnContext(ctx, "failed to list kserve tags, falling back to releases api", "err", err)
		} else {
			versions = ParseTags(string(out))
		}
	}

	if len(versions) == 0 {
		releases, err := env.GitHub.ReleaseTimestamps(ctx, s.Endpoints.Owner, s.Endpoints.Repo)
		if err != nil {
			slog.WarnContext(ctx, "failed to read kserve releases", "err", err)
		}
		for _, r := range releases {
			if v, ok := versionutil.Validate(r.Tag); ok {
				versions = append(versions, v)
			}
		}
	}

	return uniqueDescending(versions)
}

// ParseTags reads the stable versions out of `git ls-remote --tags` output.
func ParseTags(out string) []versionutil.Version {
	var versions []versionutil.Version
	for _, line := range strings.Split(out, "\n") {
		_, ref, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		tag, ok := strings.CutPrefix(strings.TrimSpace(ref), "refs/tags/")
		if !ok {
			continue
		}
		tag = strings.TrimSuffix(tag, "^{}")
		if v, ok := versionutil.Validate(tag); ok {
			versions = append(versions, v)
		}
	}
	return uniqueDescending(versions)
}

func uniqueDescending(versions []versionutil.Version) []versionutil.Version {
	slices.SortFunc(versions, func(a, b versionutil.Version) int {
		return b.Compare(a)
	})
	return slices.CompactFunc(versions, func(a, b versionutil.Version) bool {
		return a.Compare(b) == 0
	})
}

// latestPatch returns the newest release of the docs' major.minor, or its
// ".0" patch when no release is known.
func latestPatch(releases []versionutil.Version, docVersion string) string {
	doc, err := versionutil.Parse(docVersion)
	if err == nil {
		for _, r := range releases {
			if r.MajorMinor() == doc.MajorMinor() {
				return r.String()
			}
		}
	}
	if strings.Count(docVersion, ".") == 1 {
		return docVersion + ".0"
	}
	return docVersion
}

func (s Scraper) Scrape(ctx context.Context, env scraper.Env) (scraper.Result, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	if env.KubeVersion == "" {
		return scraper.Result{}, fmt.Errorf("the current kubernetes version is unknown")
	}

	docVersions, archived := s.docVersions(ctx, env.Fetcher)
	if len(docVersions) == 0 {
		err := fmt.Errorf("no kserve documentation versions found")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return scraper.Result{}, err
	}
	span.SetAttributes(attribute.Int("doc_versions", len(docVersions)))

	releases := s.releases(ctx, env)

	var records []ledger.VersionRecord
	for _, docVersion := range docVersions {
		var kube []string
		var err error
		if _, ok := archived[docVersion]; ok {
			kube, err = s.archiveKubeVersions(ctx, env.Fetcher, docVersion)
		} else {
			kube, err = s.currentKubeVersions(ctx, env, docVersion)
		}
		if err != nil || len(kube) == 0 {
			slog.WarnContext(ctx, "could not determine kubernetes compatibility", "app", Name, "docs", docVersion, "err", err)
			continue
		}

		release := latestPatch(releases, docVersion)
		record := scraper.Record(release, kube)
		record.ChartVersion = "v" + release
		records = append(records, record)
	}

	if len(records) == 0 {
		return scraper.Result{}, fmt.Errorf("no kserve compatibility rows were generated")
	}
	return scraper.Result{Versions: ledger.Sort(records)}, nil
}
