package aws

import (
	"errors"
	"strings"
	"time"

	"vm-migrator/core/models"

	"github.com/aws/smithy-go"
)

// snapshotWaitCeiling bounds the wait for the snapshot itself to finish
// copying; the EBS copy is quick relative to the export that follows.
var snapshotWaitCeiling = 20 * time.Minute

// classify maps an AWS API error onto the migration error taxonomy.
func classify(op string, err error) error {
	var me *models.MigrationError
	if errors.As(err, &me) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case code == "AuthFailure" || code == "UnauthorizedOperation" ||
			code == "AccessDenied" || code == "OptInRequired":
			return models.NewError(models.ErrKindAuthorization, op, err)
		case isNotFoundCode(code):
			return models.NewError(models.ErrKindConflict, op, err)
		case code == "RequestLimitExceeded" || code == "Throttling" ||
			code == "ThrottlingException" || code == "RequestThrottled" ||
			code == "ServiceUnavailable" || code == "InternalError":
			return models.NewError(models.ErrKindTransient, op, err)
		}
	}
	// Connection resets and timeouts stay retryable.
	return models.NewError(models.ErrKindTransient, op, err)
}

// isNotFound reports whether err is a missing-resource error, which
// compensation treats as already done.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return isNotFoundCode(apiErr.ErrorCode())
	}
	return false
}

func isNotFoundCode(code string) bool {
	return strings.HasSuffix(code, ".NotFound") || code == "NoSuchKey" || code == "NoSuchBucket"
}
