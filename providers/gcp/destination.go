package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"vm-migrator/core/models"
	"vm-migrator/core/stages"

	"google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/storage/v1"
)

// EnsureBucket creates the bucket if it does not exist. An existing
// bucket owned by the project is reused.
func (c *Client) EnsureBucket(ctx context.Context, bucket string) error {
	_, err := c.storageService.Buckets.Get(bucket).Context(ctx).Do()
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return classify("ensureBucket", err)
	}

	_, err = c.storageService.Buckets.Insert(c.projectID, &storage.Bucket{
		Name: bucket,
	}).Context(ctx).Do()
	if err != nil && !isConflict(err) {
		return classify("ensureBucket", err)
	}
	return nil
}

// ObjectExists reports whether the object is already present.
func (c *Client) ObjectExists(ctx context.Context, bucket, object string) (bool, error) {
	_, err := c.storageService.Objects.Get(bucket, object).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("putObject", err)
}

// UploadObject streams r into the bucket and returns the gs:// URI.
func (c *Client) UploadObject(ctx context.Context, bucket, object string, r io.Reader) (string, error) {
	_, err := c.storageService.Objects.Insert(bucket, &storage.Object{
		Name: object,
	}).Media(r).Context(ctx).Do()
	if err != nil {
		return "", classify("putObject", err)
	}
	return fmt.Sprintf("gs://%s/%s", bucket, object), nil
}

// DeleteObject removes the object; already gone is fine.
func (c *Client) DeleteObject(ctx context.Context, bucket, object string) error {
	err := c.storageService.Objects.Delete(bucket, object).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return classify("deleteObject", err)
	}
	return nil
}

// FindImage reports whether a destination image with the name exists.
func (c *Client) FindImage(ctx context.Context, name string) (bool, error) {
	_, err := c.computeService.Images.Get(c.projectID, name).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("importImage", err)
}

// StartImageImport registers a destination image from the uploaded raw
// blob and returns the operation name for polling. The OS hint is
// recorded as the image family.
func (c *Client) StartImageImport(ctx context.Context, name, sourceURI, osHint string) (string, error) {
	// Objects.Insert URIs come back as gs://; the image API wants the
	// storage endpoint form.
	rawSource := strings.Replace(sourceURI, "gs://", "https://storage.googleapis.com/", 1)

	op, err := c.computeService.Images.Insert(c.projectID, &compute.Image{
		Name:   name,
		Family: osHint,
		RawDisk: &compute.ImageRawDisk{
			Source: rawSource,
		},
		Labels: map[string]string{"managed-by": "vm-migrator"},
	}).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			// Lost a race with our own retry; the find step on
			// re-execution will pick the image up.
			return "", models.NewError(models.ErrKindConflict, "importImage", err)
		}
		return "", classify("importImage", err)
	}
	return op.Name, nil
}

// ImportStatus reports one observation of an image import operation.
func (c *Client) ImportStatus(ctx context.Context, opID string) (bool, bool, error) {
	op, err := c.computeService.GlobalOperations.Get(c.projectID, opID).Context(ctx).Do()
	if err != nil {
		return false, false, classify("importImage", err)
	}
	if op.Status != "DONE" {
		return false, false, nil
	}
	if op.Error != nil && len(op.Error.Errors) > 0 {
		return false, true, nil
	}
	return true, false, nil
}

// DeleteImage removes the destination image; already gone is fine.
func (c *Client) DeleteImage(ctx context.Context, name string) error {
	_, err := c.computeService.Images.Delete(c.projectID, name).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return classify("deregisterImage", err)
	}
	return nil
}

// FindInstance reports whether the destination instance exists.
func (c *Client) FindInstance(ctx context.Context, name, zone string) (bool, error) {
	_, err := c.computeService.Instances.Get(c.projectID, zone, name).Context(ctx).Do()
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, classify("createInstance", err)
}

// CreateInstance creates the destination instance from the imported
// image. The call is synchronous-accept: the instance reaches running
// state asynchronously and the pipeline does not block on that.
func (c *Client) CreateInstance(ctx context.Context, inst stages.InstanceSpec) (string, error) {
	machineType := fmt.Sprintf("zones/%s/machineTypes/%s", inst.Zone, inst.MachineType)
	sourceImage := fmt.Sprintf("global/images/%s", inst.ImageName)
	network := fmt.Sprintf("global/networks/%s", inst.Network)

	_, err := c.computeService.Instances.Insert(c.projectID, inst.Zone, &compute.Instance{
		Name:        inst.Name,
		MachineType: machineType,
		Disks: []*compute.AttachedDisk{{
			Boot:       true,
			AutoDelete: true,
			InitializeParams: &compute.AttachedDiskInitializeParams{
				SourceImage: sourceImage,
			},
		}},
		NetworkInterfaces: []*compute.NetworkInterface{{
			Network: network,
			AccessConfigs: []*compute.AccessConfig{{
				Type: "ONE_TO_ONE_NAT",
				Name: "External NAT",
			}},
		}},
		Labels: map[string]string{"managed-by": "vm-migrator"},
	}).Context(ctx).Do()
	if err != nil {
		if isConflict(err) {
			return inst.Name, nil
		}
		return "", classify("createInstance", err)
	}
	return inst.Name, nil
}

// DeleteInstance terminates the destination instance; already gone is
// fine.
func (c *Client) DeleteInstance(ctx context.Context, name, zone string) error {
	_, err := c.computeService.Instances.Delete(c.projectID, zone, name).Context(ctx).Do()
	if err != nil && !isNotFound(err) {
		return classify("deleteInstance", err)
	}
	return nil
}

// classify maps a Google API error onto the migration error taxonomy.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return models.NewError(models.ErrKindAuthorization, op, err)
		case apiErr.Code == 404 || apiErr.Code == 409 || apiErr.Code == 412:
			return models.NewError(models.ErrKindConflict, op, err)
		case apiErr.Code == 429 || apiErr.Code >= 500:
			return models.NewError(models.ErrKindTransient, op, err)
		}
	}
	return models.NewError(models.ErrKindTransient, op, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 409
}
