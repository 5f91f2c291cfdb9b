package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/fetch"
	"kubecompat/lib/versionutil"
)

var tracer = otel.Tracer("kubecompat/lib/github")

const DefaultBaseURL = "https://api.github.com"

// timestamps are read from at most this many pages of 100 releases.
const timestampPages = 2

type Release struct {
	Tag       string
	CreatedAt time.Time
}

type apiRelease struct {
	TagName   string `json:"tag_name"`
	CreatedAt string `json:"created_at"`
}

// Client reads release metadata from the GitHub REST api. authentication
// headers are the concern of the underlying fetcher.
type Client struct {
	fetcher fetch.Fetcher
	baseURL string
}

func NewClient(f fetch.Fetcher, baseURL string) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return Client{
		fetcher: f,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (c Client) releasesURL(owner, repo string) string {
	return fmt.Sprintf(
		"%s/repos/%s/%s/releases",
		c.baseURL,
		url.PathEscape(owner),
		url.PathEscape(repo),
	)
}

// Releases returns the tag names of the most recent releases.
func (c Client) Releases(ctx context.Context, owner, repo string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Releases")
	defer span.End()
	span.SetAttributes(attribute.String("repo", owner+"/"+repo))

	var releases []apiRelease
	err := fetch.FetchJSON(ctx, c.fetcher, c.releasesURL(owner, repo), &releases)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch releases")
		return nil, fmt.Errorf("fetch releases of %s/%s: %w", owner, repo, err)
	}

	tags := make([]string, len(releases))
	for i, r := range releases {
		tags[i] = r.TagName
	}
	return tags, nil
}

func (c Client) LatestRelease(ctx context.Context, owner, repo string) (string, error) {
	ctx, span := tracer.Start(ctx, "LatestRelease")
	defer span.End()
	span.SetAttributes(attribute.String("repo", owner+"/"+repo))

	var release apiRelease
	err := fetch.FetchJSON(ctx, c.fetcher, c.releasesURL(owner, repo)+"/latest", &release)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch latest release")
		return "", fmt.Errorf("fetch latest release of %s/%s: %w", owner, repo, err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("latest release of %s/%s has no tag", owner, repo)
	}
	return release.TagName, nil
}

// ReleaseTimestamps returns tag and creation time of releases in the order
// the api lists them (newest first). releases without a creation time are
// skipped. reading stops at the first page that fails after the first.
func (c Client) ReleaseTimestamps(ctx context.Context, owner, repo string) ([]Release, error) {
	ctx, span := tracer.Start(ctx, "ReleaseTimestamps")
	defer span.End()
	span.SetAttributes(attribute.String("repo", owner+"/"+repo))

	var out []Release
	for page := 1; page <= timestampPages; page++ {
		pageURL := fmt.Sprintf("%s?page=%d&per_page=100", c.releasesURL(owner, repo), page)

		var releases []apiRelease
		err := fetch.FetchJSON(ctx, c.fetcher, pageURL, &releases)
		if err != nil {
			if page == 1 {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to fetch releases")
				return nil, fmt.Errorf("fetch releases of %s/%s: %w", owner, repo, err)
			}
			slog.WarnContext(ctx, "stopped reading release pages", "repo", owner+"/"+repo, "page", page, "err", err)
			break
		}
		if len(releases) == 0 {
			break
		}

		for _, r := range releases {
			if r.CreatedAt == "" {
				continue
			}
			created, err := time.Parse(time.RFC3339, r.CreatedAt)
			if err != nil {
				slog.WarnContext(ctx, "invalid release timestamp", "tag", r.TagName, "created_at", r.CreatedAt)
				continue
			}
			out = append(out, Release{Tag: r.TagName, CreatedAt: created})
		}
	}
	return out, nil
}

// KubeReleaseInfo returns the first stable release of every kubernetes minor
// version, oldest first.
func (c Client) KubeReleaseInfo(ctx context.Context) ([]Release, error) {
	releases, err := c.ReleaseTimestamps(ctx, "kubernetes", "kubernetes")
	if err != nil {
		return nil, err
	}
	return FirstPerMinor(releases), nil
}

// FirstPerMinor keeps the earliest release of every major.minor, ignoring
// tags with a prerelease suffix, and sorts the result ascending. releases is
// expected newest first.
func FirstPerMinor(releases []Release) []Release {
	seen := make(map[string]struct{})
	var out []Release
	for i := len(releases) - 1; i >= 0; i-- {
		r := releases[i]
		if strings.Contains(r.Tag, "-") {
			continue
		}
		minor, ok := versionutil.CleanKubeVersion(r.Tag)
		if !ok {
			continue
		}
		if _, dup := seen[minor]; dup {
			continue
		}
		seen[minor] = struct{}{}
		out = append(out, r)
	}

	slices.SortStableFunc(out, func(a, b Release) int {
		va, _ := versionutil.Validate(a.Tag)
		vb, _ := versionutil.Validate(b.Tag)
		if cmp := va.Compare(vb); cmp != 0 {
			return cmp
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// FindLastNReleases returns up to n releases published before ts, releases
// must be sorted oldest first. when ts precedes every release the first n are
// returned, when it follows every release the last n are.
func FindLastNReleases(releases []Release, ts time.Time, n int) []Release {
	if n <= 0 {
		return nil
	}
	for i, r := range releases {
		if !r.CreatedAt.After(ts) {
			continue
		}
		if i == 0 {
			return releases[:min(n, len(releases))]
		}
		return releases[max(0, i-n):i]
	}
	return releases[max(0, len(releases)-n):]
}
