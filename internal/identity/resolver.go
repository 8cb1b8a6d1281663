package identity

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/rs/zerolog/log"
)

// ACMAPI defines the ACM operations used for domain lookups.
type ACMAPI interface {
	ListCertificates(ctx context.Context, params *acm.ListCertificatesInput, optFns ...func(*acm.Options)) (*acm.ListCertificatesOutput, error)
}

// STSAPI defines the STS operations used to detect the caller account.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Profile is a named (account, region) pair.
type Profile struct {
	Name    string
	Account string
	Region  string
}

// Request is the user input to a resolution.
type Request struct {
	CertificateID string
	Domain        string
	Environment   string
	Account       string
	Region        string

	// FallbackRegion applies when neither Region nor the environment set one.
	FallbackRegion string
}

// Resolver turns a Request into an Identity.
type Resolver struct {
	profiles  map[string]Profile
	directory func(region string) ACMAPI
	accounts  STSAPI
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirectory sets the ACM client factory used for domain lookups.
func WithDirectory(fn func(region string) ACMAPI) Option {
	return func(r *Resolver) { r.directory = fn }
}

// WithAccountLookup sets the client used when no account is configured.
func WithAccountLookup(c STSAPI) Option {
	return func(r *Resolver) { r.accounts = c }
}

// NewResolver creates a resolver over a closed set of environment profiles.
func NewResolver(profiles map[string]Profile, opts ...Option) *Resolver {
	r := &Resolver{profiles: profiles}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Profiles returns the recognized environment profiles sorted by name.
func (r *Resolver) Profiles() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve produces exactly one identity or fails. Input and environment
// problems are reported as ErrConfig before any network call.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Identity, error) {
	if (req.CertificateID == "") == (req.Domain == "") {
		return Identity{}, fmt.Errorf("%w: exactly one of certificate id or domain is required", ErrConfig)
	}

	// A full ARN carries its own account and region.
	if arn.IsARN(req.CertificateID) {
		if req.Environment != "" {
			if _, ok := r.profiles[req.Environment]; !ok {
				return Identity{}, fmt.Errorf("%w: unknown environment %q", ErrConfig, req.Environment)
			}
		}
		return r.fromARN(req)
	}

	account, region, err := r.target(req)
	if err != nil {
		return Identity{}, err
	}

	if req.CertificateID != "" {
		return r.explicit(ctx, req.CertificateID, account, region)
	}
	return r.lookup(ctx, req.Domain, region)
}

func (r *Resolver) target(req Request) (account, region string, err error) {
	if req.Environment != "" {
		p, ok := r.profiles[req.Environment]
		if !ok {
			return "", "", fmt.Errorf("%w: unknown environment %q", ErrConfig, req.Environment)
		}
		account, region = p.Account, p.Region
	}
	if req.Account != "" {
		account = req.Account
	}
	if req.Region != "" {
		region = req.Region
	}
	if region == "" {
		region = req.FallbackRegion
	}
	if region == "" {
		return "", "", fmt.Errorf("%w: no region given and no environment selected", ErrConfig)
	}
	return account, region, nil
}

// fromARN parses a full certificate ARN. Explicit account or region values
// must agree with it.
func (r *Resolver) fromARN(req Request) (Identity, error) {
	id, err := Parse(req.CertificateID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if req.Account != "" && req.Account != id.Account {
		return Identity{}, fmt.Errorf("%w: account %s conflicts with certificate %s", ErrConfig, req.Account, id.ARN())
	}
	if req.Region != "" && req.Region != id.Region {
		return Identity{}, fmt.Errorf("%w: region %s conflicts with certificate %s", ErrConfig, req.Region, id.ARN())
	}
	logResolved(id, "arn")
	return id, nil
}

func (r *Resolver) explicit(ctx context.Context, certID, account, region string) (Identity, error) {
	if account == "" {
		if r.accounts == nil {
			return Identity{}, fmt.Errorf("%w: no account given and no environment selected", ErrConfig)
		}
		out, err := r.accounts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
		if err != nil {
			return Identity{}, fmt.Errorf("%w: detect account: %w", ErrConfig, err)
		}
		account = aws.ToString(out.Account)
		log.Debug().Str("account", account).Msg("account detected from caller identity")
	}

	id := New(region, account, certID)
	logResolved(id, "explicit")
	return id, nil
}

func (r *Resolver) lookup(ctx context.Context, domain, region string) (Identity, error) {
	if r.directory == nil {
		return Identity{}, fmt.Errorf("%w: no certificate directory configured", ErrConfig)
	}
	paginator := acm.NewListCertificatesPaginator(r.directory(region), &acm.ListCertificatesInput{
		CertificateStatuses: []acmtypes.CertificateStatus{acmtypes.CertificateStatusIssued},
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return Identity{}, err
		}

		output, err := paginator.NextPage(ctx)
		if err != nil {
			return Identity{}, fmt.Errorf("list certificates: %w", err)
		}

		for _, summary := range output.CertificateSummaryList {
			if aws.ToString(summary.DomainName) != domain {
				continue
			}
			id, err := Parse(aws.ToString(summary.CertificateArn))
			if err != nil {
				return Identity{}, fmt.Errorf("%w: %w", ErrResolution, err)
			}
			logResolved(id, "domain")
			return id, nil
		}
	}

	return Identity{}, fmt.Errorf("%w: no issued certificate for domain %q", ErrResolution, domain)
}

func logResolved(id Identity, source string) {
	log.Info().
		Str("certificate", id.ARN()).
		Str("resolved_from", source).
		Msg("certificate identity resolved")
}
