package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldPortal    = "portal"
	FieldHost      = "host"
	FieldMAC       = "mac"
	FieldIndex     = "playlist_index"
	FieldAction    = "action"
	FieldAttempt   = "attempt"
	FieldStatus    = "status"
	FieldURL       = "url"
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"
	FieldPath      = "path"
)
