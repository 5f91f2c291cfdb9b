package kubeversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/fetch"
	"kubecompat/lib/versionutil"
)

var tracer = otel.Tracer("kubecompat/lib/kubeversion")

const StableURL = "https://cdn.dl.k8s.io/release/stable.txt"

var ErrNotRecorded = errors.New("kube version file not found")

// Latest reads the newest stable kubernetes release from url.
func Latest(ctx context.Context, f fetch.Fetcher, url string) (versionutil.Version, error) {
	ctx, span := tracer.Start(ctx, "Latest")
	defer span.End()

	if url == "" {
		url = StableURL
	}

	body, err := f.Fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch stable release")
		return versionutil.Version{}, fmt.Errorf("fetch latest kube version: %w", err)
	}

	raw := strings.TrimSpace(string(body))
	v, ok := versionutil.Validate(raw)
	if !ok {
		err := fmt.Errorf("%w: latest kube version %q", versionutil.ErrInvalidVersion, raw)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid stable release")
		return versionutil.Version{}, err
	}
	return v, nil
}

// Current returns the "major.minor" recorded in path.
func Current(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotRecorded, path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(contents)), nil
}

// Write records the "major.minor" of v in path.
func Write(path string, v versionutil.Version) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(v.MajorMinor()), 0644)
}

// Refresh fetches the latest release and records it in path, it returns the
// recorded "major.minor". when fetching fails the previously recorded value
// is used instead.
func Refresh(ctx context.Context, f fetch.Fetcher, url, path string) (string, error) {
	latest, err := Latest(ctx, f, url)
	if err != nil {
		current, currentErr := Current(path)
		if currentErr != nil {
			return "", errors.Join(err, currentErr)
		}
		slog.WarnContext(ctx, "using recorded kube version", "version", current, "err", err)
		return current, nil
	}

	err = Write(path, latest)
	if err != nil {
		slog.WarnContext(ctx, "failed to record kube version", "path", path, "err", err)
	}
	slog.InfoContext(ctx, "using latest kube version", "version", latest.String())
	return latest.MajorMinor(), nil
}
