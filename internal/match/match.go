// Package match decides whether a resource record references a certificate.
package match

import (
	"fmt"

	"github.com/yairfalse/certusage/internal/identity"
	"github.com/yairfalse/certusage/pkg/usage"
)

const (
	// SSLCertificateOption is the Beanstalk option naming listener certificates.
	SSLCertificateOption = "SSLCertificateArns"
	// ValidationSuccess is the App Runner validation status of a usable domain.
	ValidationSuccess = "SUCCESS"
)

// Predicate reports every place a record references the identity.
// A record of another family yields no reports.
type Predicate func(usage.Record, identity.Identity) []usage.Report

// Options tunes family-specific rules.
type Options struct {
	BeanstalkNamespace            string
	AppRunnerAllValidationRecords bool
}

// Matcher builds predicates for every family.
type Matcher struct {
	opts Options
}

// New creates a matcher.
func New(opts Options) *Matcher {
	return &Matcher{opts: opts}
}

// For returns the predicate paired with a family, or nil for an unknown kind.
func (m *Matcher) For(kind usage.Kind) Predicate {
	switch kind {
	case usage.KindClassicELB:
		return ClassicELB
	case usage.KindELBV2:
		return ELBV2
	case usage.KindCloudFront:
		return CloudFront
	case usage.KindAppRunner:
		return m.appRunner
	case usage.KindBeanstalk:
		return m.beanstalk
	case usage.KindAPIGateway:
		return APIGateway
	default:
		return nil
	}
}

// ClassicELB matches listeners whose SSL certificate id is the identity.
func ClassicELB(r usage.Record, id identity.Identity) []usage.Report {
	lb, ok := r.(usage.ClassicLoadBalancer)
	if !ok {
		return nil
	}
	var reports []usage.Report
	for _, l := range lb.Listeners {
		if !id.Matches(l.CertificateID) {
			continue
		}
		reports = append(reports, usage.Report{
			Kind:        usage.KindClassicELB,
			Resource:    lb.Name,
			Detail:      l.Protocol,
			Location:    fmt.Sprintf("%s listener on classic load balancer %s", l.Protocol, lb.Name),
			Certificate: id.ARN(),
		})
	}
	return reports
}

// ELBV2 matches listeners carrying the identity among their certificates.
func ELBV2(r usage.Record, id identity.Identity) []usage.Report {
	lb, ok := r.(usage.LoadBalancer)
	if !ok {
		return nil
	}
	var reports []usage.Report
	for _, l := range lb.Listeners {
		for _, arn := range l.CertificateARNs {
			if !id.Matches(arn) {
				continue
			}
			reports = append(reports, usage.Report{
				Kind:        usage.KindELBV2,
				Resource:    lb.ARN,
				Detail:      l.ARN,
				Location:    fmt.Sprintf("listener %s (%s:%d) on load balancer %s", l.ARN, l.Protocol, l.Port, lb.Name),
				Certificate: id.ARN(),
			})
		}
	}
	return reports
}

// CloudFront matches distributions whose viewer certificate is the identity.
func CloudFront(r usage.Record, id identity.Identity) []usage.Report {
	d, ok := r.(usage.Distribution)
	if !ok || !id.Matches(d.ViewerCertificateARN) {
		return nil
	}
	return []usage.Report{{
		Kind:        usage.KindCloudFront,
		Resource:    d.ID,
		Detail:      d.DomainName,
		Location:    fmt.Sprintf("distribution %s (%s)", d.ID, d.DomainName),
		Certificate: id.ARN(),
	}}
}

// APIGateway matches custom domain configurations using the identity.
func APIGateway(r usage.Record, id identity.Identity) []usage.Report {
	d, ok := r.(usage.APIDomain)
	if !ok {
		return nil
	}
	var reports []usage.Report
	for _, c := range d.Configurations {
		if !id.Matches(c.CertificateARN) {
			continue
		}
		reports = append(reports, usage.Report{
			Kind:        usage.KindAPIGateway,
			Resource:    d.DomainName,
			Detail:      c.EndpointType,
			Location:    fmt.Sprintf("%s endpoint of custom domain %s", c.EndpointType, d.DomainName),
			Certificate: id.ARN(),
		})
	}
	return reports
}

func (m *Matcher) appRunner(r usage.Record, id identity.Identity) []usage.Report {
	svc, ok := r.(usage.AppRunnerService)
	if !ok {
		return nil
	}
	var reports []usage.Report
	for _, d := range svc.CustomDomains {
		if !m.validated(d.ValidationStatuses) || !id.Matches(d.CertificateARN) {
			continue
		}
		reports = append(reports, usage.Report{
			Kind:        usage.KindAppRunner,
			Resource:    svc.ARN,
			Detail:      d.DomainName,
			Location:    fmt.Sprintf("custom domain %s on service %s", d.DomainName, svc.Name),
			Certificate: id.ARN(),
		})
	}
	return reports
}

// validated gates App Runner domains on the first validation record, or on
// every record when configured.
func (m *Matcher) validated(statuses []string) bool {
	if len(statuses) == 0 {
		return false
	}
	if !m.opts.AppRunnerAllValidationRecords {
		return statuses[0] == ValidationSuccess
	}
	for _, s := range statuses {
		if s != ValidationSuccess {
			return false
		}
	}
	return true
}

// beanstalk matches only the SSLCertificateArns option of the listener
// namespace. The value is compared whole.
func (m *Matcher) beanstalk(r usage.Record, id identity.Identity) []usage.Report {
	env, ok := r.(usage.BeanstalkEnvironment)
	if !ok {
		return nil
	}
	var reports []usage.Report
	for _, s := range env.Settings {
		if s.Namespace != m.opts.BeanstalkNamespace || s.OptionName != SSLCertificateOption {
			continue
		}
		if !id.Matches(s.Value) {
			continue
		}
		reports = append(reports, usage.Report{
			Kind:        usage.KindBeanstalk,
			Resource:    env.EnvironmentName,
			Detail:      s.Namespace,
			Location:    fmt.Sprintf("environment %s of application %s (%s)", env.EnvironmentName, env.ApplicationName, s.Namespace),
			Certificate: id.ARN(),
		})
	}
	return reports
}
