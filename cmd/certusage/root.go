package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/certusage/internal/identity"
	"github.com/yairfalse/certusage/internal/source"
	sourceaws "github.com/yairfalse/certusage/internal/source/aws"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK            = 0
	exitError         = 1
	exitSourceFailure = 2
	exitMatched       = 3
)

// exitCodeError carries a non-zero exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

// deps holds the AWS seams of the CLI.
type deps struct {
	loadAWS   func(ctx context.Context, cfg sourceaws.Config) (aws.Config, error)
	sources   func(aws.Config) []source.Source
	directory func(awsCfg aws.Config, region string) identity.ACMAPI
	accounts  func(aws.Config) identity.STSAPI
	stdout    io.Writer
}

func defaultDeps() deps {
	return deps{
		loadAWS: sourceaws.LoadConfig,
		sources: func(cfg aws.Config) []source.Source {
			return sourceaws.New(cfg).Sources()
		},
		directory: func(cfg aws.Config, region string) identity.ACMAPI {
			return acm.NewFromConfig(cfg, func(o *acm.Options) { o.Region = region })
		},
		accounts: func(cfg aws.Config) identity.STSAPI {
			return sts.NewFromConfig(cfg)
		},
		stdout: os.Stdout,
	}
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	return execute(context.Background(), defaultDeps(), os.Args[1:])
}

func execute(ctx context.Context, d deps, args []string) int {
	cmd := newRootCmd(d)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitCodeError
	if errors.As(err, &ee) {
		if ee.err != nil {
			log.Error().Err(ee.err).Msg("certusage failed")
		}
		return ee.code
	}
	log.Error().Err(err).Msg("certusage failed")
	return exitError
}

func newRootCmd(d deps) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "certusage",
		Short: "Find where a TLS certificate is in use",
		Long: `certusage - find where a TLS certificate is in use

Resolves a certificate from its id or domain name, then scans load
balancers, CloudFront distributions, App Runner services, Elastic
Beanstalk environments and API Gateway domains for references to it.`,
		Example: `  certusage --arn abc-123 --env staging
  certusage --domain api.example.com --env staging --output table
  certusage --arn abc-123 --account 111122223333 --region us-east-1 --only elbv2,cloudfront
  certusage --domain api.example.com --env staging --fail-on-match`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithSignals(cmd.Context(), func(ctx context.Context) error {
				return runScan(ctx, opts, d)
			})
		},
	}
	cmd.SetVersionTemplate("certusage {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to TOML config file")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.history, "history", "", "Path to the run history database")

	f := cmd.Flags()
	f.StringVar(&opts.certID, "arn", "", "Certificate id (or full ACM ARN) to search for")
	f.StringVar(&opts.domain, "domain", "", "Domain name of an issued ACM certificate to search for")
	f.StringVarP(&opts.env, "env", "e", "", "Environment profile (account and region)")
	f.StringVar(&opts.account, "account", "", "AWS account id, overrides the environment account")
	f.StringVarP(&opts.region, "region", "r", "", "AWS region, overrides the environment region")
	f.StringVar(&opts.profile, "profile", "", "AWS shared config profile")
	f.StringSliceVarP(&opts.output, "output", "o", nil, "Output formats: text, json, table (comma separated)")
	f.BoolVar(&opts.parallel, "parallel", false, "Scan all resource families concurrently")
	f.StringSliceVar(&opts.skip, "skip", nil, "Resource families to skip (elb,elbv2,cloudfront,apprunner,beanstalk,apigateway)")
	f.StringSliceVar(&opts.only, "only", nil, "Only scan these resource families")
	f.DurationVar(&opts.timeout, "timeout", 0, "Abort the scan after this duration")
	f.BoolVar(&opts.failOnMatch, "fail-on-match", false, "Exit 3 when the certificate is in use")
	f.BoolVar(&opts.strict, "strict", false, "Exit 2 when any resource family could not be scanned")

	cmd.AddCommand(newEnvironmentsCmd(opts, d))
	cmd.AddCommand(newHistoryCmd(opts, d))
	cmd.AddCommand(newVersionCmd(d))

	return cmd
}

// runWithSignals runs fn until it returns or SIGINT/SIGTERM arrives.
func runWithSignals(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return fn(ctx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()

	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Warn().Str("signal", sig.Signal.String()).Msg("interrupted")
		return &exitCodeError{code: exitError, err: err}
	}
	return err
}
