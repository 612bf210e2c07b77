// Package costing produces the advisory pre-flight cost estimate logged
// before a migration starts. Estimates never block or fail a job.
package costing

import (
	"context"
	"log"
)

// PriceSource supplies the inputs for the estimate. The AWS provider
// client satisfies it.
type PriceSource interface {
	DataTransferRate(ctx context.Context) float64
	RootVolumeSizeGB(ctx context.Context, instanceID string) int64
}

// Estimate is the pre-flight migration cost estimate.
type Estimate struct {
	VolumeSizeGB    int64
	TransferRateUSD float64
	TransferCostUSD float64
}

// Estimator computes egress cost for the blob that will leave the
// source cloud.
type Estimator struct {
	source PriceSource
}

// NewEstimator creates a new estimator over the given price source.
func NewEstimator(source PriceSource) *Estimator {
	return &Estimator{source: source}
}

// Estimate computes the transfer cost estimate for an instance. A zero
// volume size means the inputs were unavailable and the estimate is
// skipped by the caller.
func (e *Estimator) Estimate(ctx context.Context, instanceID string) Estimate {
	size := e.source.RootVolumeSizeGB(ctx, instanceID)
	rate := e.source.DataTransferRate(ctx)
	return Estimate{
		VolumeSizeGB:    size,
		TransferRateUSD: rate,
		TransferCostUSD: float64(size) * rate,
	}
}

// Log writes the estimate to the job log.
func (e Estimate) Log(instanceID string) {
	if e.VolumeSizeGB == 0 {
		log.Printf("[%s] transfer cost estimate unavailable", instanceID)
		return
	}
	log.Printf("[%s] estimated egress: %d GB at $%.3f/GB, about $%.2f",
		instanceID, e.VolumeSizeGB, e.TransferRateUSD, e.TransferCostUSD)
}
