package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewayv2"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewayv2/types"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	apprunnertypes "github.com/aws/aws-sdk-go-v2/service/apprunner/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	classictypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/certusage/pkg/usage"
)

// scanClassicELB lists classic load balancers with their listeners.
func (inv *Inventory) scanClassicELB(ctx context.Context, yield func(usage.Record, error) bool) {
	var marker *string

	for {
		if canceled(ctx, yield) {
			return
		}

		output, err := inv.classicClient.DescribeLoadBalancers(ctx, &elasticloadbalancing.DescribeLoadBalancersInput{Marker: marker})
		if err != nil {
			yield(nil, fmt.Errorf("describe classic load balancers: %w", err))
			return
		}

		for _, lb := range output.LoadBalancerDescriptions {
			if !yield(convertClassicELB(lb), nil) {
				return
			}
		}

		if output.NextMarker == nil {
			return
		}
		marker = output.NextMarker
	}
}

func convertClassicELB(lb classictypes.LoadBalancerDescription) usage.ClassicLoadBalancer {
	r := usage.ClassicLoadBalancer{
		Name:      aws.ToString(lb.LoadBalancerName),
		DNSName:   aws.ToString(lb.DNSName),
		Listeners: []usage.ClassicListener{},
	}
	for _, ld := range lb.ListenerDescriptions {
		if ld.Listener == nil {
			continue
		}
		r.Listeners = append(r.Listeners, usage.ClassicListener{
			Protocol:      aws.ToString(ld.Listener.Protocol),
			CertificateID: aws.ToString(ld.Listener.SSLCertificateId),
		})
	}
	return r
}

// scanELBV2 lists application and network load balancers. Listeners of each
// load balancer are drained before the load balancer is yielded.
func (inv *Inventory) scanELBV2(ctx context.Context, yield func(usage.Record, error) bool) {
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(inv.elbv2Client, &elasticloadbalancingv2.DescribeLoadBalancersInput{})

	for paginator.HasMorePages() {
		if canceled(ctx, yield) {
			return
		}

		output, err := paginator.NextPage(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("describe load balancers: %w", err))
			return
		}

		for _, lb := range output.LoadBalancers {
			listeners, err := inv.listListeners(ctx, lb.LoadBalancerArn)
			if err != nil {
				yield(nil, err)
				return
			}
			r := usage.LoadBalancer{
				ARN:       aws.ToString(lb.LoadBalancerArn),
				Name:      aws.ToString(lb.LoadBalancerName),
				DNSName:   aws.ToString(lb.DNSName),
				Listeners: listeners,
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (inv *Inventory) listListeners(ctx context.Context, lbARN *string) ([]usage.Listener, error) {
	listeners := []usage.Listener{}
	var marker *string

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := inv.elbv2Client.DescribeListeners(ctx, &elasticloadbalancingv2.DescribeListenersInput{
			LoadBalancerArn: lbARN,
			Marker:          marker,
		})
		if err != nil {
			return nil, fmt.Errorf("describe listeners for %s: %w", aws.ToString(lbARN), err)
		}

		for _, l := range output.Listeners {
			listeners = append(listeners, convertListener(l))
		}

		if output.NextMarker == nil {
			return listeners, nil
		}
		marker = output.NextMarker
	}
}

func convertListener(l elbtypes.Listener) usage.Listener {
	r := usage.Listener{
		ARN:             aws.ToString(l.ListenerArn),
		Protocol:        string(l.Protocol),
		Port:            aws.ToInt32(l.Port),
		CertificateARNs: []string{},
	}
	for _, c := range l.Certificates {
		if c.CertificateArn != nil {
			r.CertificateARNs = append(r.CertificateARNs, *c.CertificateArn)
		}
	}
	return r
}

// scanCloudFront lists CloudFront distributions.
func (inv *Inventory) scanCloudFront(ctx context.Context, yield func(usage.Record, error) bool) {
	var marker *string

	for {
		if canceled(ctx, yield) {
			return
		}

		output, err := inv.cloudfrontClient.ListDistributions(ctx, &cloudfront.ListDistributionsInput{Marker: marker})
		if err != nil {
			yield(nil, fmt.Errorf("list distributions: %w", err))
			return
		}

		list := output.DistributionList
		if list == nil {
			return
		}

		for _, d := range list.Items {
			if !yield(convertDistribution(d), nil) {
				return
			}
		}

		if !aws.ToBool(list.IsTruncated) || list.NextMarker == nil {
			return
		}
		marker = list.NextMarker
	}
}

func convertDistribution(d cftypes.DistributionSummary) usage.Distribution {
	r := usage.Distribution{
		ID:         aws.ToString(d.Id),
		DomainName: aws.ToString(d.DomainName),
		Aliases:    []string{},
	}
	if d.Aliases != nil {
		r.Aliases = append(r.Aliases, d.Aliases.Items...)
	}
	if d.ViewerCertificate != nil {
		r.ViewerCertificateARN = aws.ToString(d.ViewerCertificate.ACMCertificateArn)
	}
	return r
}

// scanAppRunner lists App Runner services with their custom domains.
func (inv *Inventory) scanAppRunner(ctx context.Context, yield func(usage.Record, error) bool) {
	inv.appRunnerNotice.Do(func() {
		log.Debug().
			Str("source", string(usage.KindAppRunner)).
			Msg("App Runner custom domains expose no certificate ARN; this family cannot report matches")
	})

	var nextToken *string

	for {
		if canceled(ctx, yield) {
			return
		}

		output, err := inv.apprunnerClient.ListServices(ctx, &apprunner.ListServicesInput{NextToken: nextToken})
		if err != nil {
			yield(nil, fmt.Errorf("list services: %w", err))
			return
		}

		for _, svc := range output.ServiceSummaryList {
			domains, err := inv.listCustomDomains(ctx, svc.ServiceArn)
			if err != nil {
				yield(nil, err)
				return
			}
			r := usage.AppRunnerService{
				ARN:           aws.ToString(svc.ServiceArn),
				Name:          aws.ToString(svc.ServiceName),
				CustomDomains: domains,
			}
			if !yield(r, nil) {
				return
			}
		}

		if output.NextToken == nil {
			return
		}
		nextToken = output.NextToken
	}
}

func (inv *Inventory) listCustomDomains(ctx context.Context, serviceARN *string) ([]usage.CustomDomain, error) {
	domains := []usage.CustomDomain{}
	paginator := apprunner.NewDescribeCustomDomainsPaginator(inv.apprunnerClient, &apprunner.DescribeCustomDomainsInput{
		ServiceArn: serviceARN,
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("describe custom domains for %s: %w", aws.ToString(serviceARN), err)
		}

		for _, d := range output.CustomDomains {
			domains = append(domains, convertCustomDomain(d))
		}
	}
	return domains, nil
}

// convertCustomDomain keeps validation statuses in upstream order. The App
// Runner API does not expose the certificate ARN of a custom domain, so
// CertificateARN stays empty.
func convertCustomDomain(d apprunnertypes.CustomDomain) usage.CustomDomain {
	r := usage.CustomDomain{
		DomainName:         aws.ToString(d.DomainName),
		ValidationStatuses: []string{},
	}
	for _, rec := range d.CertificateValidationRecords {
		r.ValidationStatuses = append(r.ValidationStatuses, string(rec.Status))
	}
	return r
}

// scanBeanstalk lists Elastic Beanstalk environments with their option settings.
func (inv *Inventory) scanBeanstalk(ctx context.Context, yield func(usage.Record, error) bool) {
	var nextToken *string

	for {
		if canceled(ctx, yield) {
			return
		}

		output, err := inv.beanstalkClient.DescribeEnvironments(ctx, &elasticbeanstalk.DescribeEnvironmentsInput{
			IncludeDeleted: aws.Bool(false),
			NextToken:      nextToken,
		})
		if err != nil {
			yield(nil, fmt.Errorf("describe environments: %w", err))
			return
		}

		for _, env := range output.Environments {
			if canceled(ctx, yield) {
				return
			}
			r, err := inv.describeEnvironment(ctx, env)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}

		if output.NextToken == nil {
			return
		}
		nextToken = output.NextToken
	}
}

func (inv *Inventory) describeEnvironment(ctx context.Context, env ebtypes.EnvironmentDescription) (usage.BeanstalkEnvironment, error) {
	r := usage.BeanstalkEnvironment{
		ApplicationName: aws.ToString(env.ApplicationName),
		EnvironmentName: aws.ToString(env.EnvironmentName),
		Settings:        []usage.OptionSetting{},
	}

	output, err := inv.beanstalkClient.DescribeConfigurationSettings(ctx, &elasticbeanstalk.DescribeConfigurationSettingsInput{
		ApplicationName: env.ApplicationName,
		EnvironmentName: env.EnvironmentName,
	})
	if err != nil {
		return r, fmt.Errorf("describe configuration settings for %s: %w", r.EnvironmentName, err)
	}

	if len(output.ConfigurationSettings) > 1 {
		log.Debug().
			Str("environment", r.EnvironmentName).
			Int("count", len(output.ConfigurationSettings)).
			Msg("multiple configuration descriptions, flattening")
	}
	for _, desc := range output.ConfigurationSettings {
		for _, opt := range desc.OptionSettings {
			r.Settings = append(r.Settings, usage.OptionSetting{
				Namespace:  aws.ToString(opt.Namespace),
				OptionName: aws.ToString(opt.OptionName),
				Value:      aws.ToString(opt.Value),
			})
		}
	}
	return r, nil
}

// scanAPIGateway lists API Gateway v2 custom domain names.
func (inv *Inventory) scanAPIGateway(ctx context.Context, yield func(usage.Record, error) bool) {
	var nextToken *string

	for {
		if canceled(ctx, yield) {
			return
		}

		output, err := inv.apigatewayClient.GetDomainNames(ctx, &apigatewayv2.GetDomainNamesInput{NextToken: nextToken})
		if err != nil {
			yield(nil, fmt.Errorf("get domain names: %w", err))
			return
		}

		for _, d := range output.Items {
			if !yield(convertDomainName(d), nil) {
				return
			}
		}

		if output.NextToken == nil {
			return
		}
		nextToken = output.NextToken
	}
}

func convertDomainName(d apigwtypes.DomainName) usage.APIDomain {
	r := usage.APIDomain{
		DomainName:     aws.ToString(d.DomainName),
		Configurations: []usage.DomainConfiguration{},
	}
	for _, c := range d.DomainNameConfigurations {
		r.Configurations = append(r.Configurations, usage.DomainConfiguration{
			CertificateARN: aws.ToString(c.CertificateArn),
			EndpointType:   string(c.EndpointType),
		})
	}
	return r
}
