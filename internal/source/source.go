// Package source defines the inventory sources scanned for certificate references.
package source

import (
	"context"
	"iter"

	"github.com/yairfalse/certusage/pkg/usage"
)

// Source lists every resource of one family.
//
// Records returns a lazy sequence; each call starts a fresh pagination from
// the first page. The sequence ends after the first error it yields.
type Source interface {
	Kind() usage.Kind
	Records(ctx context.Context) iter.Seq2[usage.Record, error]
}

// Collect drains a source into a slice.
func Collect(ctx context.Context, s Source) ([]usage.Record, error) {
	var records []usage.Record
	for r, err := range s.Records(ctx) {
		if err != nil {
			return records, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Filter returns the sources whose kind passes keep, preserving order.
func Filter(sources []Source, keep func(usage.Kind) bool) []Source {
	var out []Source
	for _, s := range sources {
		if keep(s.Kind()) {
			out = append(out, s)
		}
	}
	return out
}
