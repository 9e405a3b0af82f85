package core

// error_messages.go maps technical errors to coded, user-facing messages.
//
// Codes are quoted by operators when reporting problems:
//
//	DB001-DB008    persistence (duplicates, constraints, connectivity)
//	VAL003-VAL011  record and request validation
//	FILE001-FILE005 uploaded file problems
//	UPL002-UPL005  import session lifecycle
//	JOB001-JOB004  search jobs and the job provider
//	RATE001        request throttling
//	ERR000         anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns come before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened (user-friendly)
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Jobs come first: provider errors wrap transport errors such as
	// "timeout" that would otherwise match the persistence patterns.
	{"import already in progress", UserMessage{"Results for this job are already being imported", "Wait for the running import to finish", "JOB001"}},
	{"job not found", UserMessage{"Search job not found", "Refresh the job list", "JOB002"}},
	{"provider unavailable", UserMessage{"The search provider is unavailable", "Please try again later", "JOB003"}},
	{"job not completed", UserMessage{"The search job has not completed", "Wait until the job is completed before importing", "JOB004"}},

	// Persistence
	{"duplicate key", UserMessage{"A record with this ID already exists", "Remove the id column or leave it empty", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"violates unique", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"check constraint", UserMessage{"A value is outside the allowed range", "Check coordinates and required fields", "DB003"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"value too long", UserMessage{"A value is longer than the column allows", "Shorten the value and import again", "DB008"}},

	// Validation
	{"required field", UserMessage{"Required field is empty", "Every row needs a name", "VAL003"}},
	{"malformed name", UserMessage{"The name is not valid text", "Remove control characters and keep names under 255 characters", "VAL008"}},
	{"coordinate out of range", UserMessage{"Coordinates are out of range", "Latitude must be within ±90 and longitude within ±180", "VAL009"}},
	{"invalid search", UserMessage{"The search request is incomplete", "Provide a query, a latitude and a longitude", "VAL010"}},
	{"invalid enrich request", UserMessage{"Nothing to look up", "Provide a website, a domain or known emails", "VAL011"}},

	// Files
	{"file too large", UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Check for unbalanced quotes near the reported line", "FILE002"}},
	{"invalid delimiter", UserMessage{"The column separator is not supported", "Use a comma, semicolon or tab", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},
	{"empty file", UserMessage{"The uploaded file is empty", "Please upload a CSV file with a header row", "FILE005"}},

	// Import sessions
	{"too many concurrent imports", UserMessage{"System busy: too many imports in progress", "Please wait a moment and try again", "UPL002"}},
	{"import session not found", UserMessage{"Import session not found", "The preview may have expired. Upload the file again", "UPL003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "UPL004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or check your connection", "UPL005"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
