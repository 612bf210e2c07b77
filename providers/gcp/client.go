// Package gcp implements the destination-cloud collaborator against
// Compute Engine and Cloud Storage. All errors crossing the package
// boundary are classified.
package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

// Client is the GCP destination provider client.
type Client struct {
	computeService *compute.Service
	storageService *storage.Service
	projectID      string
}

// NewClient creates a new GCP client. credentialsFile may be empty, in
// which case application default credentials are used.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	computeService, err := compute.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}
	storageService, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	return &Client{
		computeService: computeService,
		storageService: storageService,
		projectID:      projectID,
	}, nil
}
