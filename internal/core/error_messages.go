package core

// error_messages.go maps technical errors to coded messages for the run summary.
//
// When a stage fails, the summary shows the mapped message and action next to
// the stage; the raw error stays in the structured log. Codes are grouped by
// category:
//
//	CFG001 - Missing configuration
//	CFG002 - Invalid settings file
//	SRC001 - No CSV export found
//	SRC002 - CSV export is missing columns
//	SRC003 - CSV export could not be parsed
//	AT001  - Unknown single-select option
//	AT002  - Authentication rejected by the store
//	AT003  - Table not found
//	AT004  - Batch too large
//	AT005  - Rate limited
//	NET001 - Store unreachable
//	NET002 - Request timed out
//	ERR000 - Fallback

import (
	"fmt"
	"strings"
)

// UserMessage contains a user-friendly error message with an action hint.
type UserMessage struct {
	Message string // What went wrong
	Action  string // What to do about it
	Code    string // Reference code, e.g. "SRC001"
}

// errorPattern maps a lowercase substring of an error to a message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is checked in order; the first match wins.
var errorPatterns = []errorPattern{
	// Configuration
	{
		pattern: "required environment variable",
		msg:     UserMessage{Message: "Required configuration is missing", Action: "Check the .env file", Code: "CFG001"},
	},
	{
		pattern: "validation failed",
		msg:     UserMessage{Message: "Configuration is invalid", Action: "Check the .env file", Code: "CFG001"},
	},
	{
		pattern: "settings",
		msg:     UserMessage{Message: "Settings file could not be used", Action: "Fix the settings file or remove it to use defaults", Code: "CFG002"},
	},

	// Source files
	{
		pattern: "no file matches",
		msg:     UserMessage{Message: "No CSV export found", Action: "Check that the download step produced the file", Code: "SRC001"},
	},
	{
		pattern: "missing required columns",
		msg:     UserMessage{Message: "CSV export is missing columns", Action: "The console export format may have changed", Code: "SRC002"},
	},
	{
		pattern: "parse csv",
		msg:     UserMessage{Message: "CSV export could not be parsed", Action: "Re-download the export", Code: "SRC003"},
	},

	// Remote store
	{
		pattern: "invalid_multiple_choice_options",
		msg:     UserMessage{Message: "A value is not a registered select option", Action: "Add the option to the field in the store, then re-run", Code: "AT001"},
	},
	{
		pattern: "unknown select option",
		msg:     UserMessage{Message: "A value is not a registered select option", Action: "Add the option to the field in the store, then re-run", Code: "AT001"},
	},
	{
		pattern: "authentication",
		msg:     UserMessage{Message: "The store rejected the credentials", Action: "Check AIRTABLE_API_KEY and its base access", Code: "AT002"},
	},
	{
		pattern: "unauthorized",
		msg:     UserMessage{Message: "The store rejected the credentials", Action: "Check AIRTABLE_API_KEY and its base access", Code: "AT002"},
	},
	{
		pattern: "table not found",
		msg:     UserMessage{Message: "Table not found", Action: "Check the table names in the settings file", Code: "AT003"},
	},
	{
		pattern: "batch too large",
		msg:     UserMessage{Message: "Too many records in one request", Action: "Lower batch_size to 10 or less", Code: "AT004"},
	},
	{
		pattern: "rate limit",
		msg:     UserMessage{Message: "Too many requests", Action: "Wait a moment before running again", Code: "AT005"},
	},
	{
		pattern: "rate_limit",
		msg:     UserMessage{Message: "Too many requests", Action: "Wait a moment before running again", Code: "AT005"},
	},
	{
		pattern: "too many requests",
		msg:     UserMessage{Message: "Too many requests", Action: "Wait a moment before running again", Code: "AT005"},
	},

	// Network
	{
		pattern: "connection refused",
		msg:     UserMessage{Message: "Store unreachable", Action: "Check the network connection", Code: "NET001"},
	},
	{
		pattern: "no such host",
		msg:     UserMessage{Message: "Store unreachable", Action: "Check the network connection", Code: "NET001"},
	},
	{
		pattern: "deadline exceeded",
		msg:     UserMessage{Message: "Request timed out", Action: "Run again later", Code: "NET002"},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// Check the structured log for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the log for details",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Matching is case-insensitive; the first matching pattern wins.
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
