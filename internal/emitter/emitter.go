// Package emitter defines the output interface for certusage.
package emitter

import (
	"context"
	"fmt"
	"io"

	"github.com/yairfalse/certusage/pkg/usage"
)

// Emitter outputs match reports to a sink.
type Emitter interface {
	// Emit writes one report.
	Emit(ctx context.Context, report usage.Report) error

	// Close flushes buffered output.
	Close() error
}

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatTable = "table"
)

// New creates the emitter for a format.
func New(format string, w io.Writer) (Emitter, error) {
	switch format {
	case FormatText, "":
		return NewTextEmitter(w), nil
	case FormatJSON:
		return NewJSONEmitter(w), nil
	case FormatTable:
		return NewTableEmitter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// NewFromFormats creates one emitter per format, all writing to w. More
// than one format fans out through a MultiEmitter; duplicates are dropped.
func NewFromFormats(formats []string, w io.Writer) (Emitter, error) {
	var emitters []Emitter
	seen := make(map[string]bool, len(formats))
	for _, f := range formats {
		if seen[f] {
			continue
		}
		seen[f] = true
		e, err := New(f, w)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, e)
	}

	switch len(emitters) {
	case 0:
		return NewTextEmitter(w), nil
	case 1:
		return emitters[0], nil
	default:
		return NewMultiEmitter(emitters...), nil
	}
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple sinks.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns first error.
func (m *MultiEmitter) Emit(ctx context.Context, report usage.Report) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
