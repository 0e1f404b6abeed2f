package client

import (
	"errors"
	"github.com/aws/smithy-go"
)

// ErrorCode extracts the backend API error code, e.g. ThrottlingException, or "" for
// errors that did not come from the service.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
