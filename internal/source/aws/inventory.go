// Package aws implements the AWS inventory sources for certusage.
package aws

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"

	"github.com/yairfalse/certusage/internal/source"
	"github.com/yairfalse/certusage/pkg/usage"
)

// Inventory holds one client per scanned service.
type Inventory struct {
	// AWS clients (interfaces for testability)
	classicClient    ClassicELBAPI
	elbv2Client      ELBV2API
	cloudfrontClient CloudFrontAPI
	apprunnerClient  AppRunnerAPI
	beanstalkClient  BeanstalkAPI
	apigatewayClient APIGatewayAPI

	appRunnerNotice sync.Once
}

// Config holds AWS client settings.
type Config struct {
	Region  string
	Profile string
}

// LoadConfig loads the shared AWS configuration. Requests are never retried.
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Clients carries one client per scanned service.
type Clients struct {
	ClassicELB ClassicELBAPI
	ELBV2      ELBV2API
	CloudFront CloudFrontAPI
	AppRunner  AppRunnerAPI
	Beanstalk  BeanstalkAPI
	APIGateway APIGatewayAPI
}

// New creates an inventory with SDK clients for the configured region.
func New(awsCfg aws.Config) *Inventory {
	return NewWithClients(Clients{
		ClassicELB: elasticloadbalancing.NewFromConfig(awsCfg),
		ELBV2:      elasticloadbalancingv2.NewFromConfig(awsCfg),
		CloudFront: cloudfront.NewFromConfig(awsCfg),
		AppRunner:  apprunner.NewFromConfig(awsCfg),
		Beanstalk:  elasticbeanstalk.NewFromConfig(awsCfg),
		APIGateway: apigatewayv2.NewFromConfig(awsCfg),
	})
}

// NewWithClients creates an inventory over pre-built clients.
func NewWithClients(c Clients) *Inventory {
	return &Inventory{
		classicClient:    c.ClassicELB,
		elbv2Client:      c.ELBV2,
		cloudfrontClient: c.CloudFront,
		apprunnerClient:  c.AppRunner,
		beanstalkClient:  c.Beanstalk,
		apigatewayClient: c.APIGateway,
	}
}

type scanner struct {
	kind usage.Kind
	fn   func(context.Context, func(usage.Record, error) bool)
}

func (s scanner) Kind() usage.Kind { return s.kind }

func (s scanner) Records(ctx context.Context) iter.Seq2[usage.Record, error] {
	return func(yield func(usage.Record, error) bool) {
		s.fn(ctx, yield)
	}
}

// Sources returns one source per family, in scan order.
func (inv *Inventory) Sources() []source.Source {
	return []source.Source{
		scanner{usage.KindClassicELB, inv.scanClassicELB},
		scanner{usage.KindELBV2, inv.scanELBV2},
		scanner{usage.KindCloudFront, inv.scanCloudFront},
		scanner{usage.KindAppRunner, inv.scanAppRunner},
		scanner{usage.KindBeanstalk, inv.scanBeanstalk},
		scanner{usage.KindAPIGateway, inv.scanAPIGateway},
	}
}

// canceled yields ctx.Err() and reports true once the context is done.
func canceled(ctx context.Context, yield func(usage.Record, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(nil, err)
		return true
	}
	return false
}
