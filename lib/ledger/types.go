package ledger

import (
	"maps"
	"slices"
)

// VersionRecord is one application version together with the kubernetes
// minor versions it is known to run on.
type VersionRecord struct {
	Version           string   `yaml:"version"`
	Kube              []string `yaml:"kube,flow"`
	Requirements      []any    `yaml:"requirements,flow"`
	Incompatibilities []any    `yaml:"incompatibilities,flow"`
	// Summary describes what changed since the previous record, once set it
	// is never replaced.
	Summary      map[string]any `yaml:"summary,omitempty"`
	ChartVersion string         `yaml:"chart_version,omitempty"`
	Images       []string       `yaml:"images,omitempty,flow"`
	EOLAt        string         `yaml:"eolAt,omitempty"`
}

// Ledger is the persisted compatibility history of a single application.
type Ledger struct {
	HelmRepositoryURL string          `yaml:"helm_repository_url,omitempty"`
	ChartName         string          `yaml:"chart_name,omitempty"`
	HelmValues        string          `yaml:"helm_values,omitempty"`
	Versions          []VersionRecord `yaml:"versions"`

	// keys this package does not know about are carried through untouched
	Extra map[string]any `yaml:",inline"`
}

func (r VersionRecord) clone() VersionRecord {
	out := r
	out.Kube = slices.Clone(r.Kube)
	out.Images = slices.Clone(r.Images)
	out.Requirements = slices.Clone(r.Requirements)
	out.Incompatibilities = slices.Clone(r.Incompatibilities)
	out.Summary = maps.Clone(r.Summary)
	return out
}

// Find returns the record for the given version.
func (l Ledger) Find(version string) (VersionRecord, bool) {
	for _, v := range l.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return VersionRecord{}, false
}
