// Package usage defines the resource records and match reports for certusage.
package usage

import "fmt"

// Kind names one resource family.
type Kind string

const (
	KindClassicELB Kind = "elb"
	KindELBV2      Kind = "elbv2"
	KindCloudFront Kind = "cloudfront"
	KindAppRunner  Kind = "apprunner"
	KindBeanstalk  Kind = "beanstalk"
	KindAPIGateway Kind = "apigateway"
)

// Kinds returns every family in scan order.
func Kinds() []Kind {
	return []Kind{KindClassicELB, KindELBV2, KindCloudFront, KindAppRunner, KindBeanstalk, KindAPIGateway}
}

// ParseKind validates a family name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Record is one complete resource as listed by an inventory source, with all
// of its sub-collections already drained. The set of variants is closed.
type Record interface {
	Kind() Kind
	record()
}

// ClassicLoadBalancer is an Elastic Load Balancing (v1) load balancer.
type ClassicLoadBalancer struct {
	Name      string
	DNSName   string
	Listeners []ClassicListener
}

// ClassicListener is a listener of a classic load balancer.
type ClassicListener struct {
	Protocol      string
	CertificateID string // SSLCertificateId, empty for plain listeners
}

// LoadBalancer is an application or network load balancer (ELBv2).
type LoadBalancer struct {
	ARN       string
	Name      string
	DNSName   string
	Listeners []Listener
}

// Listener is an ELBv2 listener.
type Listener struct {
	ARN             string
	Protocol        string
	Port            int32
	CertificateARNs []string
}

// Distribution is a CloudFront distribution.
type Distribution struct {
	ID                   string
	DomainName           string
	Aliases              []string
	ViewerCertificateARN string
}

// AppRunnerService is an App Runner service with its custom domains.
type AppRunnerService struct {
	ARN           string
	Name          string
	CustomDomains []CustomDomain
}

// CustomDomain is a domain associated with an App Runner service.
// ValidationStatuses keeps the upstream order of the certificate validation records.
type CustomDomain struct {
	DomainName         string
	CertificateARN     string
	ValidationStatuses []string
}

// BeanstalkEnvironment is an Elastic Beanstalk environment and its option settings.
type BeanstalkEnvironment struct {
	ApplicationName string
	EnvironmentName string
	Settings        []OptionSetting
}

// OptionSetting is one Elastic Beanstalk configuration option.
type OptionSetting struct {
	Namespace  string
	OptionName string
	Value      string
}

// APIDomain is an API Gateway (v2) custom domain name.
type APIDomain struct {
	DomainName     string
	Configurations []DomainConfiguration
}

// DomainConfiguration is one endpoint configuration of an API Gateway domain.
type DomainConfiguration struct {
	CertificateARN string
	EndpointType   string
}

func (ClassicLoadBalancer) Kind() Kind  { return KindClassicELB }
func (LoadBalancer) Kind() Kind         { return KindELBV2 }
func (Distribution) Kind() Kind         { return KindCloudFront }
func (AppRunnerService) Kind() Kind     { return KindAppRunner }
func (BeanstalkEnvironment) Kind() Kind { return KindBeanstalk }
func (APIDomain) Kind() Kind            { return KindAPIGateway }

func (ClassicLoadBalancer) record()  {}
func (LoadBalancer) record()         {}
func (Distribution) record()         {}
func (AppRunnerService) record()     {}
func (BeanstalkEnvironment) record() {}
func (APIDomain) record()            {}

// Report is one confirmed use of the certificate by one resource.
type Report struct {
	Kind        Kind   `json:"kind"`        // Resource family
	Resource    string `json:"resource"`    // Owning resource (load balancer, distribution id, ...)
	Detail      string `json:"detail"`      // Sub-resource holding the reference (listener, domain, option)
	Location    string `json:"location"`    // Human-readable descriptor
	Certificate string `json:"certificate"` // Matched certificate identity
}

func (r Report) String() string {
	return fmt.Sprintf("[%s] %s", r.Kind, r.Location)
}
