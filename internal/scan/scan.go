// Package scan runs every inventory source against one certificate identity.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/certusage/internal/identity"
	"github.com/yairfalse/certusage/internal/match"
	"github.com/yairfalse/certusage/internal/source"
	"github.com/yairfalse/certusage/pkg/usage"
)

// SourceError reports a source that failed mid-scan. The scan continues with
// the next source.
type SourceError struct {
	Kind usage.Kind
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s source failed: %v", e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Code returns the AWS error code of the failure, if any.
func (e *SourceError) Code() string {
	var apiErr smithy.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// Pair binds a source to the predicate for its family.
type Pair struct {
	Source    source.Source
	Predicate match.Predicate
}

// Pairs pairs each source with the matcher's predicate for its kind,
// preserving source order.
func Pairs(sources []source.Source, m *match.Matcher) []Pair {
	pairs := make([]Pair, 0, len(sources))
	for _, s := range sources {
		p := m.For(s.Kind())
		if p == nil {
			log.Warn().Str("source", string(s.Kind())).Msg("no predicate for source, skipping")
			continue
		}
		pairs = append(pairs, Pair{Source: s, Predicate: p})
	}
	return pairs
}

// Scanner drains (source, predicate) pairs and streams reports.
type Scanner struct {
	pairs    []Pair
	parallel bool
	recorder Recorder
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithParallel drains all sources concurrently. Report order is then only
// guaranteed within one source.
func WithParallel(parallel bool) Option {
	return func(s *Scanner) { s.parallel = parallel }
}

// WithRecorder observes every source drain.
func WithRecorder(r Recorder) Option {
	return func(s *Scanner) { s.recorder = r }
}

// New creates a scanner over pairs in declared order.
func New(pairs []Pair, opts ...Option) *Scanner {
	s := &Scanner{pairs: pairs, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan yields every report for id. A failing source yields one *SourceError
// and the scan moves on; a canceled context yields ctx.Err() and ends the scan.
func (s *Scanner) Scan(ctx context.Context, id identity.Identity) iter.Seq2[usage.Report, error] {
	if s.parallel {
		return s.scanParallel(ctx, id)
	}
	return func(yield func(usage.Report, error) bool) {
		log.Info().Int("sources", len(s.pairs)).Str("certificate", id.ARN()).Msg("starting scan")
		for _, p := range s.pairs {
			if !s.drain(ctx, p, id, yield) {
				return
			}
		}
		log.Info().Msg("scan complete")
	}
}

type event struct {
	report usage.Report
	err    error
}

func (s *Scanner) scanParallel(ctx context.Context, id identity.Identity) iter.Seq2[usage.Report, error] {
	return func(yield func(usage.Report, error) bool) {
		log.Info().Int("sources", len(s.pairs)).Str("certificate", id.ARN()).Bool("parallel", true).Msg("starting scan")

		parent := ctx
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		events := make(chan event)
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range s.pairs {
			g.Go(func() error {
				s.drain(gctx, p, id, func(r usage.Report, err error) bool {
					select {
					case events <- event{report: r, err: err}:
						return true
					case <-gctx.Done():
						return false
					}
				})
				return nil
			})
		}
		go func() {
			_ = g.Wait()
			close(events)
		}()

		stop := func() {
			cancel()
			for range events {
			}
		}
		for ev := range events {
			var serr *SourceError
			if ev.err != nil && !errors.As(ev.err, &serr) {
				// Context error: surface exactly one and end the scan.
				stop()
				yield(usage.Report{}, ev.err)
				return
			}
			if !yield(ev.report, ev.err) {
				stop()
				return
			}
		}

		// Drains racing the canceled group may have dropped their error.
		if err := parent.Err(); err != nil {
			yield(usage.Report{}, err)
			return
		}
		log.Info().Msg("scan complete")
	}
}

// drain runs one pair to completion. It reports false when the consumer
// stopped or the context ended.
func (s *Scanner) drain(ctx context.Context, p Pair, id identity.Identity, yield func(usage.Report, error) bool) bool {
	kind := p.Source.Kind()
	stats := SourceStats{Kind: kind}
	start := time.Now()

	ctx = s.recorder.SourceStarted(ctx, kind)
	defer func() {
		stats.Duration = time.Since(start)
		s.recorder.SourceFinished(ctx, stats)
	}()

	for r, err := range p.Source.Records(ctx) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				stats.Err = ctxErr
				yield(usage.Report{}, ctxErr)
				return false
			}
			serr := &SourceError{Kind: kind, Err: err}
			stats.Err = serr
			log.Warn().
				Err(err).
				Str("source", string(kind)).
				Str("error_code", serr.Code()).
				Msg("source failed, continuing")
			return yield(usage.Report{}, serr)
		}

		stats.Records++
		for _, rep := range p.Predicate(r, id) {
			stats.Matches++
			if !yield(rep, nil) {
				return false
			}
		}
	}

	log.Debug().
		Str("source", string(kind)).
		Int("count", stats.Records).
		Int("matches", stats.Matches).
		Msg("source drained")
	return true
}
