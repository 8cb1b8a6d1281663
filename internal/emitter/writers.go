package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/yairfalse/certusage/pkg/usage"
)

// TextEmitter writes one console line per report as it arrives.
type TextEmitter struct {
	logger zerolog.Logger
}

// NewTextEmitter creates a text emitter writing to w.
func NewTextEmitter(w io.Writer) *TextEmitter {
	out := zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsExclude: []string{zerolog.TimestampFieldName, zerolog.LevelFieldName},
	}
	return &TextEmitter{logger: zerolog.New(out)}
}

// Emit implements Emitter.
func (e *TextEmitter) Emit(_ context.Context, r usage.Report) error {
	e.logger.Log().
		Str("kind", string(r.Kind)).
		Str("resource", r.Resource).
		Msgf("certificate used by %s", r.Location)
	return nil
}

// Close implements Emitter.
func (e *TextEmitter) Close() error { return nil }

// JSONEmitter writes one JSON object per line.
type JSONEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONEmitter creates a JSON lines emitter writing to w.
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{enc: json.NewEncoder(w)}
}

// Emit implements Emitter.
func (e *JSONEmitter) Emit(_ context.Context, r usage.Report) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// Close implements Emitter.
func (e *JSONEmitter) Close() error { return nil }

// TableEmitter buffers reports and renders them as one table on Close.
type TableEmitter struct {
	w    io.Writer
	mu   sync.Mutex
	rows [][]string
}

// NewTableEmitter creates a table emitter writing to w.
func NewTableEmitter(w io.Writer) *TableEmitter {
	return &TableEmitter{w: w}
}

// Emit implements Emitter.
func (e *TableEmitter) Emit(_ context.Context, r usage.Report) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, []string{string(r.Kind), r.Resource, r.Detail, r.Location})
	return nil
}

// Close renders the table. Nothing is written when no report was emitted.
func (e *TableEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.rows) == 0 {
		return nil
	}

	table := tablewriter.NewTable(e.w)
	table.Header("KIND", "RESOURCE", "DETAIL", "LOCATION")
	if err := table.Bulk(e.rows); err != nil {
		return fmt.Errorf("append rows: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	e.rows = nil
	return nil
}
