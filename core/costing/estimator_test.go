package costing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedPrices struct {
	rate   float64
	sizeGB int64
}

func (f fixedPrices) DataTransferRate(ctx context.Context) float64 { return f.rate }

func (f fixedPrices) RootVolumeSizeGB(ctx context.Context, instanceID string) int64 {
	return f.sizeGB
}

func TestEstimateMultipliesSizeByRate(t *testing.T) {
	est := NewEstimator(fixedPrices{rate: 0.09, sizeGB: 100}).Estimate(context.Background(), "i-abc123")
	assert.Equal(t, int64(100), est.VolumeSizeGB)
	assert.InDelta(t, 0.09, est.TransferRateUSD, 1e-9)
	assert.InDelta(t, 9.0, est.TransferCostUSD, 1e-9)
}

func TestEstimateUnavailableInputs(t *testing.T) {
	est := NewEstimator(fixedPrices{}).Estimate(context.Background(), "i-abc123")
	assert.Zero(t, est.VolumeSizeGB)
	assert.Zero(t, est.TransferCostUSD)
}
