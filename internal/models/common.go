package models

import "errors"

// ErrNotFound is returned by repositories when a row does not exist or is
// not visible to the caller.
var ErrNotFound = errors.New("record not found")

// ErrorResponse is a standardized error response for API
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
