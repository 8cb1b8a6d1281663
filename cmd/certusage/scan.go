package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/certusage/internal/config"
	"github.com/yairfalse/certusage/internal/emitter"
	"github.com/yairfalse/certusage/internal/filter"
	"github.com/yairfalse/certusage/internal/history"
	"github.com/yairfalse/certusage/internal/identity"
	"github.com/yairfalse/certusage/internal/match"
	"github.com/yairfalse/certusage/internal/scan"
	sourceaws "github.com/yairfalse/certusage/internal/source/aws"
	"github.com/yairfalse/certusage/internal/telemetry"
	"github.com/yairfalse/certusage/pkg/usage"
)

// scanOptions holds the command line flags.
type scanOptions struct {
	certID      string
	domain      string
	env         string
	account     string
	region      string
	profile     string
	configPath  string
	history     string
	output      []string
	parallel    bool
	skip        []string
	only        []string
	timeout     time.Duration
	debug       bool
	failOnMatch bool
	strict      bool
}

// loadConfig reads the config file, applies flag overrides and validates.
// Every failure is a configuration error.
func loadConfig(opts *scanOptions) (*config.Config, error) {
	setupLogging(opts.debug, "")

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", identity.ErrConfig, err)
		}
		cfg = loaded
	}

	if len(opts.output) > 0 {
		cfg.Output.Formats = opts.output
	}
	if opts.parallel {
		cfg.Scan.Parallel = true
	}
	if len(opts.skip) > 0 {
		cfg.Scan.Skip = opts.skip
	}
	if len(opts.only) > 0 {
		cfg.Scan.Only = opts.only
	}
	if opts.timeout != 0 {
		cfg.Scan.Timeout = opts.timeout
	}
	if opts.region != "" {
		cfg.AWS.Region = opts.region
	}
	if opts.profile != "" {
		cfg.AWS.Profile = opts.profile
	}
	if opts.history != "" {
		cfg.History.Path = opts.history
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrConfig, err)
	}

	setupLogging(opts.debug, cfg.Log.Level)
	return cfg, nil
}

// runScan resolves the certificate, scans every selected family and emits
// reports. The returned error carries the exit code.
func runScan(ctx context.Context, opts *scanOptions, d deps) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return &exitCodeError{code: exitError, err: err}
	}

	flt, err := filter.Parse(cfg.Scan.Skip, cfg.Scan.Only)
	if err != nil {
		return &exitCodeError{code: exitError, err: fmt.Errorf("%w: %w", identity.ErrConfig, err)}
	}

	emit, err := emitter.NewFromFormats(cfg.Output.Formats, d.stdout)
	if err != nil {
		return &exitCodeError{code: exitError, err: fmt.Errorf("%w: %w", identity.ErrConfig, err)}
	}

	if cfg.Scan.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scan.Timeout)
		defer cancel()
	}

	awsCfg, err := d.loadAWS(ctx, sourceaws.Config{Region: cfg.AWS.Region, Profile: cfg.AWS.Profile})
	if err != nil {
		return &exitCodeError{code: exitError, err: fmt.Errorf("%w: %w", identity.ErrConfig, err)}
	}

	resolver := identity.NewResolver(cfg.Profiles(),
		identity.WithDirectory(func(region string) identity.ACMAPI { return d.directory(awsCfg, region) }),
		identity.WithAccountLookup(d.accounts(awsCfg)),
	)

	id, err := resolver.Resolve(ctx, identity.Request{
		CertificateID:  opts.certID,
		Domain:         opts.domain,
		Environment:    opts.env,
		Account:        opts.account,
		Region:         opts.region,
		FallbackRegion: cfg.AWS.Region,
	})
	if err != nil {
		return &exitCodeError{code: exitError, err: err}
	}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL, cfg.Metrics)
	if err != nil {
		return &exitCodeError{code: exitError, err: fmt.Errorf("init telemetry: %w", err)}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	awsCfg.Region = id.Region
	sources := flt.Sources(d.sources(awsCfg))
	matcher := match.New(match.Options{
		BeanstalkNamespace:            cfg.Scan.BeanstalkNamespace,
		AppRunnerAllValidationRecords: cfg.Scan.AppRunnerAllValidationRecords,
	})

	summary := &scan.Summary{}
	scanner := scan.New(scan.Pairs(sources, matcher),
		scan.WithParallel(cfg.Scan.Parallel),
		scan.WithRecorder(scan.Recorders(summary, tp)),
	)

	started := time.Now()
	var reports []usage.Report
	for report, err := range scanner.Scan(ctx, id) {
		if err != nil {
			var serr *scan.SourceError
			if errors.As(err, &serr) {
				continue
			}
			_ = emit.Close()
			return &exitCodeError{code: exitError, err: fmt.Errorf("scan aborted: %w", err)}
		}
		if err := emit.Emit(ctx, report); err != nil {
			return &exitCodeError{code: exitError, err: fmt.Errorf("emit report: %w", err)}
		}
		reports = append(reports, report)
	}

	if err := emit.Close(); err != nil {
		return &exitCodeError{code: exitError, err: fmt.Errorf("close output: %w", err)}
	}

	if err := tp.Push(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics push failed")
	}

	failures := summary.Failures()
	log.Info().
		Str("certificate", id.ARN()).
		Int("records", summary.Records()).
		Int("matches", summary.Matches()).
		Int("failed_sources", len(failures)).
		Msg("scan finished")

	if summary.Matches() == 0 {
		log.Info().Str("certificate", id.ARN()).Msg("certificate not referenced by any scanned resource")
	}

	if cfg.History.Path != "" {
		run := history.Run{
			Certificate: id.ARN(),
			StartedAt:   started.UTC(),
			Duration:    time.Since(started),
			Reports:     reports,
		}
		for _, f := range failures {
			run.Failed = append(run.Failed, f.Kind)
		}
		if err := recordHistory(ctx, cfg.History.Path, run); err != nil {
			log.Warn().Err(err).Str("history", cfg.History.Path).Msg("run not recorded")
		}
	}

	switch {
	case opts.strict && len(failures) > 0:
		return &exitCodeError{code: exitSourceFailure, err: fmt.Errorf("%d resource families could not be scanned", len(failures))}
	case opts.failOnMatch && summary.Matches() > 0:
		return &exitCodeError{code: exitMatched}
	}
	return nil
}

// recordHistory logs how the references changed since the previous run of
// the same certificate, then appends run.
func recordHistory(ctx context.Context, path string, run history.Run) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	prev, found, err := store.Last(ctx, run.Certificate)
	if err != nil {
		return err
	}
	if found {
		for _, c := range history.Diff(prev.Reports, run.Reports) {
			log.Info().
				Str("change", string(c.Type)).
				Str("kind", string(c.Report.Kind)).
				Str("resource", c.Report.Resource).
				Uint64("since_run", prev.Sequence).
				Msg(c.Report.Location)
		}
	}

	seq, err := store.Record(ctx, run)
	if err != nil {
		return err
	}
	log.Debug().Uint64("run", seq).Str("history", path).Msg("run recorded")
	return nil
}
