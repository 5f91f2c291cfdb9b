package redpanda

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/helmindex"
	"kubecompat/lib/htmlutil"
	"kubecompat/lib/ledger"
	"kubecompat/lib/scraper"
)

var tracer = otel.Tracer("kubecompat/lib/scrapers/redpanda")

const (
	Name                     = "redpanda"
	DefaultHelmRepositoryURL = "https://charts.redpanda.com"
	DefaultMatrixURL         = "https://docs.redpanda.com/current/upgrade/k-compatibility/"
)

// matrix columns, all of them must be present
const (
	coreColumn          = "Redpanda Core / rpk"
	helmColumn          = "Helm Chart"
	operatorChartColumn = "Operator Helm Chart"
	operatorColumn      = "Operator"
	kubeColumn          = "Kubernetes"
)

type Scraper struct {
	HelmRepositoryURL string
	MatrixURL         string
}

func New() Scraper {
	return Scraper{
		HelmRepositoryURL: DefaultHelmRepositoryURL,
		MatrixURL:         DefaultMatrixURL,
	}
}

func (Scraper) Name() string {
	return Name
}

var seriesRegex = regexp.MustCompile(`(\d+)\.(\d+)\.x`)

// normalizeSeries turns "24.2.x" into "24.2".
func normalizeSeries(value string) (string, bool) {
	match := seriesRegex.FindStringSubmatch(value)
	if match == nil {
		return "", false
	}
	return match[1] + "." + match[2], true
}

var (
	footnoteRegex  = regexp.MustCompile(`\[[^\]]*\]`)
	kubeRangeRegex = regexp.MustCompile(`(\d+)\.(\d+)\.x\s*-\s*(\d+)\.(\d+)\.x`)
)

// parseKubeRange expands "1.27.x - 1.30.x" into every minor in between,
// footnote markers are ignored.
func parseKubeRange(env scraper.Env, value string) ([]string, error) {
	cleaned := footnoteRegex.ReplaceAllString(value, "")
	cleaned = strings.NewReplacer("–", "-", "—", "-").Replace(cleaned)
	match := kubeRangeRegex.FindStringSubmatch(strings.TrimSpace(cleaned))
	if match == nil {
		return nil, nil
	}
	return env.Expand(match[1]+"."+match[2], match[3]+"."+match[4])
}

// Matrix maps every core series ("24.2") to its supported kubernetes minors.
type Matrix map[string][]string

func (s Scraper) matrix(ctx context.Context, env scraper.Env) (Matrix, []string, error) {
	body, err := env.Fetcher.Fetch(ctx, s.MatrixURL)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch redpanda compatibility matrix: %w", err)
	}
	doc, err := htmlutil.Parse(body)
	if err != nil {
		return nil, nil, err
	}

	table, ok := htmlutil.TableAfterHeading(doc, "h2", "compatibility matrix")
	if !ok {
		return nil, nil, fmt.Errorf("compatibility matrix table not found at %s", s.MatrixURL)
	}
	parsed := htmlutil.ParseTable(table)

	columns := make(map[string]int)
	for _, name := range []string{coreColumn, helmColumn, operatorChartColumn, operatorColumn, kubeColumn} {
		idx := parsed.ExactColumn(name)
		if idx < 0 {
			return nil, nil, fmt.Errorf("unexpected compatibility matrix headers %q: missing %q", parsed.Headers, name)
		}
		columns[name] = idx
	}

	matrix := make(Matrix)
	var order []string
	for _, row := range parsed.Rows {
		core, ok := normalizeSeries(row[columns[coreColumn]])
		if !ok {
			continue
		}
		kube, err := parseKubeRange(env, row[columns[kubeColumn]])
		if err != nil {
			slog.WarnContext(ctx, "invalid kubernetes range", "app", Name, "series", core, "err", err)
			continue
		}
		if len(kube) == 0 {
			continue
		}

		// rows pairing a core series with another series of the charts or
		// the operator describe upgrade paths, not support
		mismatch := false
		for _, name := range []string{helmColumn, operatorChartColumn, operatorColumn} {
			series, ok := normalizeSeries(row[columns[name]])
			if ok && series != core {
				mismatch = true
				break
			}
		}
		if mismatch {
			continue
		}

		if _, seen := matrix[core]; !seen {
			order = append(order, core)
		}
		matrix[core] = kube
	}
	return matrix, order, nil
}

func (s Scraper) Scrape(ctx context.Context, env scraper.Env) (scraper.Result, error) {
	ctx, span := tracer.Start(ctx, "Scrape")
	defer span.End()

	matrix, order, err := s.matrix(ctx, env)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read compatibility matrix")
		return scraper.Result{}, err
	}
	if len(matrix) == 0 {
		return scraper.Result{}, fmt.Errorf("no redpanda compatibility matrix data extracted")
	}

	index, err := helmindex.Fetch(ctx, env.Fetcher, s.HelmRepositoryURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read helm index")
		return scraper.Result{}, err
	}
	latest, err := index.LatestAppPerMinor(Name)
	if err != nil {
		return scraper.Result{}, err
	}

	records := make([]ledger.VersionRecord, 0, len(order))
	for _, core := range order {
		version := core + ".0"
		release, ok := latest[core]
		if ok {
			version = release.Version.String()
		}

		record := scraper.Record(version, slices.Clone(matrix[core]))
		if ok {
			record.ChartVersion = release.ChartVersion
		}
		records = append(records, record)
	}

	return scraper.Result{
		Versions:          ledger.Sort(records),
		HelmRepositoryURL: s.HelmRepositoryURL,
		ChartName:         Name,
		ResetVersions:     true,
	}, nil
}
