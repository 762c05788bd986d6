package core

// # Error Codes Reference
//
// Infrastructure errors are mapped to user-facing messages with a code that
// can be quoted to support. Field validation failures never pass through
// here; they are returned as ContactErrors.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Unique value: a value that must be unique is already taken
//	        Matches: database.ErrUniqueViolation, "unique constraint", "duplicate key"
//
//	DB002 - Not found: the contact does not exist
//	        Matches: database.ErrNotFound
//
//	DB003 - Connection refused: unable to reach the database
//	        Patterns: "connection refused"
//
//	DB004 - Connection reset: the database connection dropped
//	        Patterns: "connection reset"
//
//	DB005 - Busy: the database is locked by another writer
//	        Patterns: "database is locked", "deadlock"
//
// # Archive Errors (ARC001-ARC099)
//
//	ARC001 - Archive timeout: the export took too long
//	         Matches: ErrArchiveTimeout
//
//	ARC002 - Archive not ready: no completed archive to download
//	         Matches: ErrArchiveNotReady
//
//	ARC003 - Archive canceled: the export was stopped
//	         Patterns: "archive run canceled"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	         Patterns: "context canceled"
//
//	REQ002 - Request timeout
//	         Patterns: "context deadline exceeded", "timeout"
//
//	REQ003 - Invalid contact id
//	         Patterns: "invalid contact id"
//
//	REQ004 - Rate limited
//	         Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// Sentinel errors are matched with errors.Is before any pattern. Patterns are
// matched case-insensitively with strings.Contains and the first match wins.

import (
	"errors"
	"fmt"
	"strings"

	db "github.com/JonMunkholm/contacts/internal/database"
)

// ErrArchiveNotReady is returned when an archive is requested before a run
// has completed.
var ErrArchiveNotReady = errors.New("archive not ready")

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgUnique = UserMessage{
		Message: "This value must be unique but already exists",
		Action:  "Choose a different value",
		Code:    "DB001",
	}
	msgNotFound = UserMessage{
		Message: "Contact not found",
		Action:  "It may have been deleted. Refresh the list",
		Code:    "DB002",
	}
	msgArchiveTimeout = UserMessage{
		Message: "The export took too long and was stopped",
		Action:  "Reset the export and try again",
		Code:    "ARC001",
	}
	msgArchiveNotReady = UserMessage{
		Message: "No export is available yet",
		Action:  "Start an export and wait for it to complete",
		Code:    "ARC002",
	}
)

// sentinelMessages are checked in order with errors.Is.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	{db.ErrUniqueViolation, msgUnique},
	{db.ErrNotFound, msgNotFound},
	{ErrArchiveTimeout, msgArchiveTimeout},
	{ErrArchiveNotReady, msgArchiveNotReady},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// More specific patterns come first.
var errorPatterns = []errorPattern{
	// Database
	{pattern: "unique constraint", msg: msgUnique},
	{pattern: "duplicate key", msg: msgUnique},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},

	// Archive
	{
		pattern: "archive run canceled",
		msg: UserMessage{
			Message: "The export was stopped",
			Action:  "Start a new export when ready",
			Code:    "ARC003",
		},
	},

	// Request
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "invalid contact id",
		msg: UserMessage{
			Message: "That is not a valid contact id",
			Action:  "Check the link and try again",
			Code:    "REQ003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "REQ004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Known sentinels win over text patterns; unmatched errors get ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range sentinelMessages {
		if errors.Is(err, s.target) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message.
type UserError struct {
	Technical error
	User      UserMessage
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
