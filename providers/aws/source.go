package aws

import (
	"context"
	"fmt"
	"io"
	"strings"

	"vm-migrator/core/models"
	"vm-migrator/core/stages"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FindSnapshot looks up a self-owned snapshot by Name tag. Returns ""
// when no snapshot with the derived name exists.
func (c *Client) FindSnapshot(ctx context.Context, name string) (string, error) {
	key, values := nameTagFilter(name)
	out, err := c.ec2Client.DescribeSnapshots(ctx, &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  []ec2types.Filter{{Name: str(key), Values: values}},
	})
	if err != nil {
		return "", classify("createSnapshot", err)
	}
	for _, snap := range out.Snapshots {
		if snap.State == ec2types.SnapshotStateError {
			continue
		}
		return *snap.SnapshotId, nil
	}
	return "", nil
}

// CreateSnapshot snapshots the instance's root volume and tags the
// snapshot with the derived name so a later run can find it.
func (c *Client) CreateSnapshot(ctx context.Context, instanceID, name string) (string, error) {
	volumeID, err := c.rootVolume(ctx, instanceID)
	if err != nil {
		return "", err
	}

	out, err := c.ec2Client.CreateSnapshot(ctx, &ec2.CreateSnapshotInput{
		VolumeId:    str(volumeID),
		Description: str("vm-migrator snapshot of " + instanceID),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSnapshot,
			Tags: []ec2types.Tag{
				{Key: str("Name"), Value: str(name)},
				{Key: str("ManagedBy"), Value: str("vm-migrator")},
			},
		}},
	})
	if err != nil {
		return "", classify("createSnapshot", err)
	}

	waiter := ec2.NewSnapshotCompletedWaiter(c.ec2Client)
	err = waiter.Wait(ctx, &ec2.DescribeSnapshotsInput{
		SnapshotIds: []string{*out.SnapshotId},
	}, snapshotWaitCeiling)
	if err != nil {
		return "", classify("createSnapshot", err)
	}
	return *out.SnapshotId, nil
}

// rootVolume resolves the instance's root EBS volume.
func (c *Client) rootVolume(ctx context.Context, instanceID string) (string, error) {
	out, err := c.ec2Client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return "", classify("createSnapshot", err)
	}
	for _, res := range out.Reservations {
		for _, inst := range res.Instances {
			rootName := ""
			if inst.RootDeviceName != nil {
				rootName = *inst.RootDeviceName
			}
			for _, bdm := range inst.BlockDeviceMappings {
				if bdm.Ebs == nil || bdm.Ebs.VolumeId == nil {
					continue
				}
				if bdm.DeviceName != nil && *bdm.DeviceName == rootName {
					return *bdm.Ebs.VolumeId, nil
				}
			}
		}
	}
	return "", models.NewError(models.ErrKindConflict, "createSnapshot",
		fmt.Errorf("no root volume found for instance %s", instanceID))
}

// DeleteSnapshot removes a snapshot; an already-deleted snapshot is fine.
func (c *Client) DeleteSnapshot(ctx context.Context, snapshotID string) error {
	_, err := c.ec2Client.DeleteSnapshot(ctx, &ec2.DeleteSnapshotInput{
		SnapshotId: str(snapshotID),
	})
	if err != nil && !isNotFound(err) {
		return classify("deleteSnapshot", err)
	}
	return nil
}

// FindImage looks up a self-owned AMI by name.
func (c *Client) FindImage(ctx context.Context, name string) (string, error) {
	out, err := c.ec2Client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		Owners:  []string{"self"},
		Filters: []ec2types.Filter{{Name: str("name"), Values: []string{name}}},
	})
	if err != nil {
		return "", classify("createImage", err)
	}
	if len(out.Images) == 0 {
		return "", nil
	}
	return *out.Images[0].ImageId, nil
}

// CreateImage registers an AMI backed by the snapshot.
func (c *Client) CreateImage(ctx context.Context, snapshotID, name string) (string, error) {
	out, err := c.ec2Client.RegisterImage(ctx, &ec2.RegisterImageInput{
		Name:               str(name),
		Architecture:       ec2types.ArchitectureValuesX8664,
		RootDeviceName:     str("/dev/sda1"),
		VirtualizationType: str("hvm"),
		BlockDeviceMappings: []ec2types.BlockDeviceMapping{{
			DeviceName: str("/dev/sda1"),
			Ebs: &ec2types.EbsBlockDevice{
				SnapshotId:          str(snapshotID),
				DeleteOnTermination: boolp(true),
			},
		}},
	})
	if err != nil {
		return "", classify("createImage", err)
	}
	return *out.ImageId, nil
}

// DeregisterImage removes the AMI; already gone is fine.
func (c *Client) DeregisterImage(ctx context.Context, imageID string) error {
	_, err := c.ec2Client.DeregisterImage(ctx, &ec2.DeregisterImageInput{
		ImageId: str(imageID),
	})
	if err != nil && !isNotFound(err) {
		return classify("deregisterImage", err)
	}
	return nil
}

// FindExportedObject returns the key of an exported blob under prefix,
// or "" when none has landed yet.
func (c *Client) FindExportedObject(ctx context.Context, bucket, prefix string) (string, error) {
	out, err := c.s3Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: str(bucket),
		Prefix: str(prefix),
	})
	if err != nil {
		return "", classify("getObject", err)
	}
	for _, obj := range out.Contents {
		if obj.Size != nil && *obj.Size > 0 {
			return *obj.Key, nil
		}
	}
	return "", nil
}

// StartExport begins an image export task targeting the bucket/prefix.
func (c *Client) StartExport(ctx context.Context, imageID, bucket, prefix, format string) (string, error) {
	out, err := c.ec2Client.ExportImage(ctx, &ec2.ExportImageInput{
		ImageId:         str(imageID),
		DiskImageFormat: ec2types.DiskImageFormat(strings.ToUpper(format)),
		S3ExportLocation: &ec2types.ExportTaskS3LocationRequest{
			S3Bucket: str(bucket),
			S3Prefix: str(prefix),
		},
	})
	if err != nil {
		return "", classify("exportImage", err)
	}
	return *out.ExportImageTaskId, nil
}

// ExportStatus reports one observation of an export task.
func (c *Client) ExportStatus(ctx context.Context, taskID string) (stages.ExportStatus, error) {
	out, err := c.ec2Client.DescribeExportImageTasks(ctx, &ec2.DescribeExportImageTasksInput{
		ExportImageTaskIds: []string{taskID},
	})
	if err != nil {
		return stages.ExportStatus{}, classify("getExportStatus", err)
	}
	if len(out.ExportImageTasks) == 0 {
		return stages.ExportStatus{}, models.NewError(models.ErrKindConflict, "getExportStatus",
			fmt.Errorf("export task %s not found", taskID))
	}

	task := out.ExportImageTasks[0]
	st := stages.ExportStatus{}
	if task.StatusMessage != nil {
		st.Message = *task.StatusMessage
	}
	switch status(task.Status) {
	case "completed":
		// The provider does not echo the final object key; the stage
		// lists the prefix once the task reports done.
		st.Done = true
	case "cancelled", "deleted", "deleting":
		st.Failed = true
	}
	return st, nil
}

// GetObject streams the exported blob from the source object store.
func (c *Client) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: str(bucket),
		Key:    str(key),
	})
	if err != nil {
		return nil, classify("getObject", err)
	}
	return out.Body, nil
}

func status(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolp(b bool) *bool { return &b }
