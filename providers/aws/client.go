// Package aws implements the source-cloud collaborator against EC2 and
// S3. All errors crossing the package boundary are classified.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the AWS source provider client.
type Client struct {
	ec2Client     *ec2.Client
	s3Client      *s3.Client
	pricingClient *pricing.Client
	region        string
}

// NewClient creates a new AWS client using the default credential chain.
func NewClient(ctx context.Context, region string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// The pricing API is only served from us-east-1.
	pricingCfg := cfg.Copy()
	pricingCfg.Region = "us-east-1"

	return &Client{
		ec2Client:     ec2.NewFromConfig(cfg),
		s3Client:      s3.NewFromConfig(cfg),
		pricingClient: pricing.NewFromConfig(pricingCfg),
		region:        region,
	}, nil
}

// Region returns the region the client was built for.
func (c *Client) Region() string { return c.region }

// nameTagFilter builds the DescribeX filter matching our derived names.
func nameTagFilter(name string) (string, []string) {
	return "tag:Name", []string{name}
}

func str(s string) *string { return awssdk.String(s) }
