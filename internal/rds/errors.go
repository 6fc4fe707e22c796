package rds

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"

	internalerrors "github.com/mpz/devops/tools/rds-cluster-scheduler/internal/errors"
)

// permanentErrorCodes are RDS error codes that retrying cannot fix.
var permanentErrorCodes = map[string]struct{}{
	"InvalidDBClusterStateFault":     {},
	"InvalidDBInstanceState":         {},
	"DBClusterNotFoundFault":         {},
	"DBClusterNotFound":              {},
	"AccessDenied":                   {},
	"AccessDeniedException":          {},
	"UnauthorizedOperation":          {},
	"AuthFailure":                    {},
	"InvalidClientTokenId":           {},
	"UnrecognizedClientException":    {},
	"ExpiredToken":                   {},
	"ExpiredTokenException":          {},
	"InvalidParameterValue":          {},
	"InvalidParameterCombination":    {},
	"InvalidParameter":               {},
	"InvalidDBClusterCapacityFault":  {},
	"UnsupportedOperation":           {},
	"OptInRequired":                  {},
	"InvalidGlobalClusterStateFault": {},
}

// ErrorCode returns the AWS API error code carried by err, if any.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsClusterNotFound reports whether err is a DBClusterNotFound fault.
func IsClusterNotFound(err error) bool {
	return strings.HasPrefix(ErrorCode(err), "DBClusterNotFound")
}

// ClassifyError marks an RDS API error as transient or permanent. Throttling,
// timeouts and server faults are transient; invalid state, authorization and
// not-found faults are permanent. Anything unrecognised is transient.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if code := ErrorCode(err); code != "" {
		if _, ok := retry.DefaultThrottleErrorCodes[code]; ok {
			return internalerrors.Transient(err)
		}
		if _, ok := retry.DefaultRetryableErrorCodes[code]; ok {
			return internalerrors.Transient(err)
		}
		if _, ok := permanentErrorCodes[code]; ok {
			return internalerrors.Permanent(err)
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		if _, ok := retry.DefaultRetryableHTTPStatusCodes[code]; ok {
			return internalerrors.Transient(err)
		}
		switch {
		case code >= 500, code == 429:
			return internalerrors.Transient(err)
		case code == 403 || code == 404:
			return internalerrors.Permanent(err)
		}
	}

	// Network timeouts, connection resets and unknown codes land here.
	return internalerrors.Transient(err)
}
