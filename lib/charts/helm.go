package charts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/executil"
)

var tracer = otel.Tracer("kubecompat/lib/charts")

// Ref identifies a chart, RepoURL is either a classic helm repository or an
// oci:// reference.
type Ref struct {
	RepoURL string
	Chart   string
	// Values is passed verbatim to --set.
	Values string
}

func (r Ref) IsOCI() bool {
	return strings.HasPrefix(r.RepoURL, "oci://")
}

// ImageResolver lists the container images a chart version deploys.
type ImageResolver interface {
	Images(ctx context.Context, ref Ref, version string) ([]string, error)
}

// HelmResolver renders charts with the helm binary. each (chart, repository)
// pair is registered with helm at most once per resolver.
type HelmResolver struct {
	runner      executil.Runner
	binary      string
	kubeVersion string

	mutex    sync.Mutex
	imported map[string]struct{}
}

func NewHelmResolver(runner executil.Runner, binary, kubeVersion string) *HelmResolver {
	if binary == "" {
		binary = "helm"
	}
	return &HelmResolver{
		runner:      runner,
		binary:      binary,
		kubeVersion: kubeVersion,
		imported:    make(map[string]struct{}),
	}
}

func (h *HelmResolver) importRepo(ctx context.Context, ref Ref) error {
	key := ref.Chart + "\x00" + ref.RepoURL

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.imported[key]; ok {
		return nil
	}

	_, err := h.runner.Run(ctx, h.binary, "repo", "add", ref.Chart, ref.RepoURL, "--force-update")
	if err != nil {
		return err
	}
	_, err = h.runner.Run(ctx, h.binary, "repo", "update")
	if err != nil {
		return err
	}
	h.imported[key] = struct{}{}
	return nil
}

func (h *HelmResolver) templateArgs(ref Ref, version string) []string {
	var args []string
	if ref.IsOCI() {
		args = []string{"template", ref.Chart, ref.RepoURL}
	} else {
		args = []string{"template", fmt.Sprintf("%s/%s", ref.Chart, ref.Chart)}
	}
	args = append(args, "--version", version)
	if h.kubeVersion != "" {
		args = append(args, "--kube-version", h.kubeVersion)
	}
	if ref.Values != "" {
		args = append(args, "--set", ref.Values)
	}
	return args
}

func (h *HelmResolver) Images(ctx context.Context, ref Ref, version string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Images")
	defer span.End()
	span.SetAttributes(
		attribute.String("chart", ref.Chart),
		attribute.String("repo", ref.RepoURL),
		attribute.String("version", version),
	)

	if !ref.IsOCI() {
		err := h.importRepo(ctx, ref)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to add helm repository")
			return nil, fmt.Errorf("add helm repository %s: %w", ref.RepoURL, err)
		}
	}

	out, err := h.runner.Run(ctx, h.binary, h.templateArgs(ref, version)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to template chart")
		return nil, fmt.Errorf("template %s %s: %w", ref.Chart, version, err)
	}

	images, err := FindNestedImages(out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode manifests")
		return nil, fmt.Errorf("decode manifests of %s %s: %w", ref.Chart, version, err)
	}
	slog.DebugContext(ctx, "resolved chart images", "chart", ref.Chart, "version", version, "count", len(images))
	return images, nil
}
