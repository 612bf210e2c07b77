package aws

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// DataTransferRate returns the on-demand per-GB internet egress price
// for the client's region, in USD. Falls back to a conservative default
// when the pricing catalog cannot be read; cost estimates are advisory
// and never block a migration.
func (c *Client) DataTransferRate(ctx context.Context) float64 {
	const fallback = 0.09

	out, err := c.pricingClient.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: str("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: str("productFamily"), Value: str("Data Transfer")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: str("fromRegionCode"), Value: str(c.region)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: str("transferType"), Value: str("AWS Outbound")},
		},
		MaxResults: int32p(1),
	})
	if err != nil || len(out.PriceList) == 0 {
		return fallback
	}

	rate, ok := parsePricePerUnit(out.PriceList[0])
	if !ok {
		return fallback
	}
	return rate
}

// RootVolumeSizeGB returns the size of the instance's root volume, used
// to scale the transfer cost estimate. Zero when unknown.
func (c *Client) RootVolumeSizeGB(ctx context.Context, instanceID string) int64 {
	volumeID, err := c.rootVolume(ctx, instanceID)
	if err != nil {
		return 0
	}
	out, err := c.ec2Client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	})
	if err != nil || len(out.Volumes) == 0 || out.Volumes[0].Size == nil {
		return 0
	}
	return int64(*out.Volumes[0].Size)
}

// parsePricePerUnit digs the first USD pricePerUnit out of a pricing
// catalog document. The catalog layout is deeply nested JSON keyed by
// opaque rate codes.
func parsePricePerUnit(doc string) (float64, bool) {
	var parsed struct {
		Terms struct {
			OnDemand map[string]struct {
				PriceDimensions map[string]struct {
					PricePerUnit map[string]string `json:"pricePerUnit"`
				} `json:"priceDimensions"`
			} `json:"OnDemand"`
		} `json:"terms"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return 0, false
	}
	for _, term := range parsed.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			if usd, ok := dim.PricePerUnit["USD"]; ok {
				rate, err := strconv.ParseFloat(usd, 64)
				if err == nil && rate > 0 {
					return rate, true
				}
			}
		}
	}
	return 0, false
}

func int32p(v int32) *int32 { return &v }
