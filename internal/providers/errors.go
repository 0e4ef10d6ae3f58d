package providers

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/systmms/keyrotate/pkg/rotation"
)

// AWS error codes the adapters branch on.
const (
	codeNoSuchEntity             = "NoSuchEntity"
	codeResourceNotFound         = "ResourceNotFoundException"
	codeResourceExists           = "ResourceExistsException"
	codeInvalidParameter         = "InvalidParameterException"
	codeParameterNotFound        = "ParameterNotFound"
	codeParameterVersionNotFound = "ParameterVersionNotFound"
)

// rejectionCodes are returned when a request signed with an access key is
// refused because of the key itself, as opposed to a service failure.
var rejectionCodes = map[string]bool{
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidAccessKeyId":          true,
	"AuthFailure":                 true,
}

// errorCode returns the AWS API error code of err, or "" when err did not
// come from an AWS API.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func hasCode(err error, codes ...string) bool {
	code := errorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// isRejection reports whether err means AWS refused the signing credential.
func isRejection(err error) bool {
	return rejectionCodes[errorCode(err)]
}

// credentialNotFound marks err so the engine can match it with
// rotation.ErrCredentialNotFound while keeping the AWS cause.
func credentialNotFound(id string, err error) error {
	return fmt.Errorf("access key %s: %w: %w", id, rotation.ErrCredentialNotFound, err)
}

// versionNotFound marks err so the engine can match it with
// rotation.ErrVersionNotFound while keeping the AWS cause.
func versionNotFound(recordID string, err error) error {
	return fmt.Errorf("record %s: %w: %w", recordID, rotation.ErrVersionNotFound, err)
}
