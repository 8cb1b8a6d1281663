package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ARN(t *testing.T) {
	id := New("eu-west-1", "589470546847", "abc-123")

	assert.Equal(t, "aws", id.Partition)
	assert.Equal(t, "arn:aws:acm:eu-west-1:589470546847:certificate/abc-123", id.ARN())
	assert.Equal(t, id.ARN(), id.String())
}

func TestNew_Partition(t *testing.T) {
	assert.Equal(t, "aws-cn", New("cn-north-1", "1", "x").Partition)
	assert.Equal(t, "aws-us-gov", New("us-gov-west-1", "1", "x").Partition)
	assert.Equal(t, "aws", New("us-east-1", "1", "x").Partition)
}

func TestParse(t *testing.T) {
	id, err := Parse("arn:aws:acm:us-east-1:123456789012:certificate/11111111-2222")
	require.NoError(t, err)

	assert.Equal(t, Identity{Partition: "aws", Region: "us-east-1", Account: "123456789012", ID: "11111111-2222"}, id)
	assert.Equal(t, "arn:aws:acm:us-east-1:123456789012:certificate/11111111-2222", id.ARN())
}

func TestParse_Invalid(t *testing.T) {
	tests := []string{
		"not-an-arn",
		"arn:aws:iam::123456789012:server-certificate/foo",
		"arn:aws:acm:us-east-1:123456789012:key/abc",
		"arn:aws:acm:us-east-1:123456789012:certificate/",
		"arn:aws:acm::123456789012:certificate/abc",
	}

	for _, tt := range tests {
		t.Run(tt, func(t *testing.T) {
			_, err := Parse(tt)
			require.Error(t, err)
		})
	}
}

func TestMatches(t *testing.T) {
	id := New("eu-west-1", "589470546847", "abc-123")

	assert.True(t, id.Matches("arn:aws:acm:eu-west-1:589470546847:certificate/abc-123"))
	assert.False(t, id.Matches("arn:aws:acm:eu-west-1:589470546847:certificate/abc-1234"))
	assert.False(t, id.Matches("ARN:AWS:ACM:EU-WEST-1:589470546847:CERTIFICATE/ABC-123"))
	assert.False(t, id.Matches(""))
}
