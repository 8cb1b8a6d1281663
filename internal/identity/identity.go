// Package identity resolves the certificate a scan searches for.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
)

var (
	// ErrConfig reports unusable input: selectors, environment, account or region.
	ErrConfig = errors.New("configuration error")
	// ErrResolution reports that a domain matched no issued certificate.
	ErrResolution = errors.New("certificate not found")
)

const resourcePrefix = "certificate/"

// Identity is the canonical, provider-qualified identifier of one certificate.
type Identity struct {
	Partition string
	Region    string
	Account   string
	ID        string
}

// New builds an identity from its parts. The partition is derived from the region.
func New(region, account, id string) Identity {
	return Identity{
		Partition: partitionFor(region),
		Region:    region,
		Account:   account,
		ID:        id,
	}
}

// Parse reads an ACM certificate ARN.
func Parse(s string) (Identity, error) {
	a, err := arn.Parse(s)
	if err != nil {
		return Identity{}, fmt.Errorf("parse certificate arn %q: %w", s, err)
	}
	if a.Service != "acm" || !strings.HasPrefix(a.Resource, resourcePrefix) {
		return Identity{}, fmt.Errorf("%q is not an acm certificate arn", s)
	}
	id := strings.TrimPrefix(a.Resource, resourcePrefix)
	if id == "" || a.Region == "" || a.AccountID == "" {
		return Identity{}, fmt.Errorf("incomplete certificate arn %q", s)
	}
	return Identity{Partition: a.Partition, Region: a.Region, Account: a.AccountID, ID: id}, nil
}

// ARN returns the canonical string form compared against resource references.
func (i Identity) ARN() string {
	return arn.ARN{
		Partition: i.Partition,
		Service:   "acm",
		Region:    i.Region,
		AccountID: i.Account,
		Resource:  resourcePrefix + i.ID,
	}.String()
}

func (i Identity) String() string {
	return i.ARN()
}

// Matches reports whether ref names this certificate. Comparison is exact.
func (i Identity) Matches(ref string) bool {
	return ref != "" && ref == i.ARN()
}

func partitionFor(region string) string {
	switch {
	case strings.HasPrefix(region, "cn-"):
		return "aws-cn"
	case strings.HasPrefix(region, "us-gov-"):
		return "aws-us-gov"
	default:
		return "aws"
	}
}
