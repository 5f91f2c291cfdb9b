package scrapers

import (
	"errors"
	"fmt"
	"slices"

	"kubecompat/lib/scraper"
	"kubecompat/lib/scrapers/flux"
	"kubecompat/lib/scrapers/kserve"
	"kubecompat/lib/scrapers/redpanda"
	"kubecompat/lib/textutil"
)

var ErrUnknownApp = errors.New("unknown application")

// Registry maps application names to their scraper.
type Registry map[string]scraper.Scraper

func Default() Registry {
	return NewRegistry(
		flux.New(),
		kserve.New(),
		redpanda.New(),
	)
}

func NewRegistry(scrapers ...scraper.Scraper) Registry {
	r := make(Registry, len(scrapers))
	for _, s := range scrapers {
		r[s.Name()] = s
	}
	return r
}

// Names returns the registered applications in lexical order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r Registry) Lookup(name string) (scraper.Scraper, error) {
	s, ok := r[name]
	if ok {
		return s, nil
	}
	suggestion, ok := textutil.Closest(name, r.Names())
	if ok {
		return nil, fmt.Errorf("%w %q, did you mean %q?", ErrUnknownApp, name, suggestion)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownApp, name)
}

// Select resolves names, every application is selected when names is empty.
func (r Registry) Select(names []string) ([]scraper.Scraper, error) {
	if len(names) == 0 {
		names = r.Names()
	}

	var errs []error
	seen := make(map[string]struct{}, len(names))
	out := make([]scraper.Scraper, 0, len(names))
	for _, name := range names {
		s, err := r.Lookup(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := seen[s.Name()]; ok {
			continue
		}
		seen[s.Name()] = struct{}{}
		out = append(out, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
