// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Every error response carries one of these codes next to the HTTP status
// (see fail in response.go). Clients branch on the code; the message is for
// display only.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "wrong_mode",
//	  "message": "operation requires a multi-user session"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeSessionNotFound = "session_not_found"
	ErrCodeMessageNotFound = "message_not_found"
	ErrCodeUnknownUser     = "unknown_user"
	ErrCodeWrongMode       = "wrong_mode"
	ErrCodeInvalidMode     = "invalid_mode"
	ErrCodeInvalidReaction = "invalid_reaction"
	ErrCodeTooLong         = "too_long"
	ErrCodeReservedName    = "reserved_name"
	ErrCodeCreateFailed    = "create_failed"
	ErrCodeImportFailed    = "import_failed"
	ErrCodeSendFailed      = "send_failed"
	ErrCodeListFailed      = "list_failed"
	ErrCodeUpdateFailed    = "update_failed"
	ErrCodeExportFailed    = "export_failed"
)
