// Package filter selects which resource families a scan visits.
package filter

import (
	"github.com/yairfalse/certusage/internal/source"
	"github.com/yairfalse/certusage/pkg/usage"
)

// Filter controls which resource families to scan.
type Filter struct {
	excludeKinds map[usage.Kind]bool
	includeKinds map[usage.Kind]bool
}

// New creates a new Filter. A non-empty only list restricts the scan to
// those families; skip always wins over only.
func New(skip, only []usage.Kind) *Filter {
	f := &Filter{
		excludeKinds: make(map[usage.Kind]bool),
		includeKinds: make(map[usage.Kind]bool),
	}
	for _, k := range skip {
		f.excludeKinds[k] = true
	}
	for _, k := range only {
		f.includeKinds[k] = true
	}
	return f
}

// Parse builds a Filter from family names.
func Parse(skip, only []string) (*Filter, error) {
	skipKinds, err := parseKinds(skip)
	if err != nil {
		return nil, err
	}
	onlyKinds, err := parseKinds(only)
	if err != nil {
		return nil, err
	}
	return New(skipKinds, onlyKinds), nil
}

func parseKinds(names []string) ([]usage.Kind, error) {
	kinds := make([]usage.Kind, 0, len(names))
	for _, n := range names {
		k, err := usage.ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// ShouldScanKind returns true if the given family should be scanned.
func (f *Filter) ShouldScanKind(kind usage.Kind) bool {
	if f.excludeKinds[kind] {
		return false
	}
	return len(f.includeKinds) == 0 || f.includeKinds[kind]
}

// Sources returns only sources that pass the filter, in their original order.
func (f *Filter) Sources(sources []source.Source) []source.Source {
	if f.IsEmpty() {
		return sources
	}
	return source.Filter(sources, f.ShouldScanKind)
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.excludeKinds) == 0 && len(f.includeKinds) == 0
}
