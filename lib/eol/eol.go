package eol

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kubecompat/lib/fetch"
	"kubecompat/lib/ledger"
)

var tracer = otel.Tracer("kubecompat/lib/eol")

const DefaultBaseURL = "https://endoflife.date/api"

// Cycle is one release cycle of an endoflife.date product. the api reports
// cycle names as strings or numbers and eol as a date or a boolean.
type Cycle struct {
	Cycle any `json:"cycle"`
	EOL   any `json:"eol"`
}

func (c Cycle) Name() string {
	switch v := c.Cycle.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// Date returns the end of life date, boolean values carry no date.
func (c Cycle) Date() (string, bool) {
	date, ok := c.EOL.(string)
	if !ok || date == "" {
		return "", false
	}
	return date, true
}

func Fetch(ctx context.Context, f fetch.Fetcher, baseURL, slug string) ([]Cycle, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("slug", slug))

	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var cycles []Cycle
	err := fetch.FetchJSON(ctx, f, fmt.Sprintf("%s/%s.json", strings.TrimSuffix(baseURL, "/"), slug), &cycles)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch eol data")
		return nil, err
	}
	return cycles, nil
}

func findCycle(name string, cycles []Cycle) (string, bool) {
	for _, c := range cycles {
		if c.Name() != name {
			continue
		}
		if date, ok := c.Date(); ok {
			return date, true
		}
	}
	return "", false
}

// MatchCycle finds the eol date of version, trying an exact cycle name first
// and its major.minor prefix second.
func MatchCycle(version string, cycles []Cycle) (string, bool) {
	version = strings.TrimPrefix(version, "v")
	if version == "" || len(cycles) == 0 {
		return "", false
	}

	if date, ok := findCycle(version, cycles); ok {
		return date, true
	}

	parts := strings.Split(version, ".")
	if len(parts) >= 2 {
		return findCycle(parts[0]+"."+parts[1], cycles)
	}
	return "", false
}

// Enrich sets eolAt on every record with a matching cycle and returns the
// number of records enriched.
func Enrich(l *ledger.Ledger, cycles []Cycle) int {
	count := 0
	for idx := range l.Versions {
		date, ok := MatchCycle(l.Versions[idx].Version, cycles)
		if !ok {
			continue
		}
		l.Versions[idx].EOLAt = date
		count++
	}
	return count
}
