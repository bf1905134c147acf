// Package handlers defines the error codes carried by JSON error bodies.
//
// Codes are lowercase snake_case and stable; clients branch on them rather
// than on messages. Page routes render HTML instead and never expose codes.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeListFailed = "list_failed"
)
