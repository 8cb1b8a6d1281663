package scan

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/yairfalse/certusage/pkg/usage"
)

// SourceStats describes one finished source drain.
type SourceStats struct {
	Kind     usage.Kind
	Records  int
	Matches  int
	Duration time.Duration
	Err      error
}

// Recorder observes source drains. Implementations must be safe for
// concurrent use when the scanner runs in parallel.
type Recorder interface {
	SourceStarted(ctx context.Context, kind usage.Kind) context.Context
	SourceFinished(ctx context.Context, stats SourceStats)
}

type nopRecorder struct{}

func (nopRecorder) SourceStarted(ctx context.Context, _ usage.Kind) context.Context { return ctx }
func (nopRecorder) SourceFinished(context.Context, SourceStats)                     {}

type multiRecorder []Recorder

// Recorders fans out to every recorder in order.
func Recorders(rs ...Recorder) Recorder {
	return multiRecorder(rs)
}

func (m multiRecorder) SourceStarted(ctx context.Context, kind usage.Kind) context.Context {
	for _, r := range m {
		ctx = r.SourceStarted(ctx, kind)
	}
	return ctx
}

func (m multiRecorder) SourceFinished(ctx context.Context, stats SourceStats) {
	for _, r := range m {
		r.SourceFinished(ctx, stats)
	}
}

// Summary collects per-source statistics of a scan.
type Summary struct {
	mu      sync.Mutex
	sources []SourceStats
}

// SourceStarted implements Recorder.
func (s *Summary) SourceStarted(ctx context.Context, _ usage.Kind) context.Context {
	return ctx
}

// SourceFinished implements Recorder.
func (s *Summary) SourceFinished(_ context.Context, stats SourceStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, stats)
}

// Sources returns the stats of every finished source in scan order.
func (s *Summary) Sources() []SourceStats {
	s.mu.Lock()
	out := slices.Clone(s.sources)
	s.mu.Unlock()

	order := usage.Kinds()
	slices.SortStableFunc(out, func(a, b SourceStats) int {
		return slices.Index(order, a.Kind) - slices.Index(order, b.Kind)
	})
	return out
}

// Records returns the total number of records inspected.
func (s *Summary) Records() int {
	n := 0
	for _, st := range s.Sources() {
		n += st.Records
	}
	return n
}

// Matches returns the total number of reports produced.
func (s *Summary) Matches() int {
	n := 0
	for _, st := range s.Sources() {
		n += st.Matches
	}
	return n
}

// Failures returns the stats of sources that ended in error.
func (s *Summary) Failures() []SourceStats {
	var out []SourceStats
	for _, st := range s.Sources() {
		if st.Err != nil {
			out = append(out, st)
		}
	}
	return out
}
