package aws

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// ErrorCode returns the API error code carried by err, or "".
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsClusterNotFound reports whether err is EMR's answer to an unknown
// cluster id. EMR has no dedicated code for this and answers with an
// InvalidRequestException whose message says the id "is not valid"; other
// invalid requests are real failures.
func IsClusterNotFound(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidRequestException" {
		return false
	}
	return strings.Contains(apiErr.ErrorMessage(), "is not valid")
}

// IsAlreadyExists reports a Glue AlreadyExistsException.
func IsAlreadyExists(err error) bool {
	return ErrorCode(err) == "AlreadyExistsException"
}
