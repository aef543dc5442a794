// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support reference.
// When an import fails, the caller can quote the error code to support staff
// for faster diagnosis.
//
// Typed errors (*Error, *InvalidMappingError) are mapped by kind first. Anything
// else falls through to the pattern list below.
//
// # Configuration Errors (CFG001-CFG099)
//
// Errors in the job configuration or the shape of the source header:
//
//	CFG001 - Invalid job: The import job configuration is invalid
//	         Action: Fix the job configuration and run the import again
//	         Kind: configuration
//
//	CFG002 - Invalid mapping: A target path has an unsupported shape
//	         Action: Use "field" or "relation.field" target paths
//	         Kind: *InvalidMappingError
//
//	CFG003 - Missing column: A required column is missing from the source
//	         Action: Check that all required columns are present in your file
//	         Patterns: "missing required column"
//
//	CFG004 - No rows: The source contains no import lines
//	         Action: Provide a file with a header row and data rows
//	         Patterns: "no import lines"
//
// # Source Errors (SRC001-SRC099)
//
// Errors fetching or parsing the row source:
//
//	SRC001 - Source unavailable: The import file could not be read
//	         Action: Check the source URL and that the file is reachable
//	         Kind: source_unavailable
//
//	SRC002 - Invalid CSV: File is not a valid CSV
//	         Action: Ensure the file is comma-separated with a header row
//	         Patterns: "invalid csv"
//
//	SRC003 - Invalid spreadsheet: File is not a readable XLSX workbook
//	         Action: Re-save the workbook as .xlsx
//	         Patterns: "invalid xlsx"
//
//	SRC004 - Empty file: The source has no header row
//	         Action: Provide a file with a header row and data rows
//	         Patterns: "empty file"
//
//	SRC005 - Unsupported source: The source location scheme is not supported
//	         Action: Use an http(s), s3 or file location
//	         Patterns: "unsupported source"
//
// # Size Errors (SIZE001-SIZE099)
//
//	SIZE001 - Too large: The result or the file exceeds the configured ceiling
//	          Action: Enable batching or split the source into smaller files
//	          Kind: oversized_result
//	          Patterns: "too large"
//
// # Store Errors (STORE001-STORE099)
//
//	STORE001 - Store rejected: The target store rejected a request
//	           Action: Review the store error details in the logs
//	           Kind: store_mutation
//
//	STORE002 - Store unreachable: Unable to reach the target store
//	           Action: Please try again in a few moments
//	           Patterns: "connection refused", "connection reset"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Already running: An import for this source is already in progress
//	         Action: Wait for the running import to finish
//	         Patterns: "already running"
//
//	RUN002 - System busy: Too many imports in progress
//	         Action: Please wait a moment and try again
//	         Patterns: "too many import runs"
//
//	RUN003 - Cancelled: The import was cancelled
//	         Action: Run the import again; batched imports resume from the checkpoint
//	         Patterns: "context canceled"
//
//	RUN004 - Timed out: The import timed out
//	         Action: Enable batching and run the import again to resume
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited: Too many requests
//	          Action: Please wait a moment before trying again
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.
//
// # For Support Staff
//
// When a user reports an error code:
//  1. Look up the code in this reference
//  2. Check the associated kind or patterns to understand what triggered it
//  3. Review the suggested action to guide the user
//  4. If ERR000, check application logs for the original technical error
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	msgInvalidJob = UserMessage{
		Message: "The import job configuration is invalid",
		Action:  "Fix the job configuration and run the import again",
		Code:    "CFG001",
	}
	msgInvalidMapping = UserMessage{
		Message: "A mapping target path has an unsupported shape",
		Action:  `Use "field" or "relation.field" target paths`,
		Code:    "CFG002",
	}
	msgSourceUnavailable = UserMessage{
		Message: "The import file could not be read",
		Action:  "Check the source URL and that the file is reachable",
		Code:    "SRC001",
	}
	msgTooLarge = UserMessage{
		Message: "The import is too large to process in one pass",
		Action:  "Enable batching or split the source into smaller files",
		Code:    "SIZE001",
	}
	msgStoreRejected = UserMessage{
		Message: "The target store rejected the import",
		Action:  "Review the store error details in the logs",
		Code:    "STORE001",
	}
)

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. The first matching pattern wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Configuration Errors (CFG003-CFG004)
	// =========================================================================
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing from the source",
			Action:  "Check that all required columns are present in your file",
			Code:    "CFG003",
		},
	},
	{
		pattern: "no import lines",
		msg: UserMessage{
			Message: "The source contains no import lines",
			Action:  "Provide a file with a header row and data rows",
			Code:    "CFG004",
		},
	},

	// =========================================================================
	// Source Errors (SRC002-SRC005)
	// =========================================================================
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "SRC002",
		},
	},
	{
		pattern: "invalid xlsx",
		msg: UserMessage{
			Message: "File is not a readable XLSX workbook",
			Action:  "Re-save the workbook as .xlsx",
			Code:    "SRC003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The source has no header row",
			Action:  "Provide a file with a header row and data rows",
			Code:    "SRC004",
		},
	},
	{
		pattern: "unsupported source",
		msg: UserMessage{
			Message: "The source location scheme is not supported",
			Action:  "Use an http(s), s3 or file location",
			Code:    "SRC005",
		},
	},

	// =========================================================================
	// Size Errors (SIZE001)
	// =========================================================================
	{
		pattern: "too large",
		msg:     msgTooLarge,
	},

	// =========================================================================
	// Run Errors (RUN001-RUN004)
	// Checked before connectivity so a cancelled dial reads as a cancellation.
	// =========================================================================
	{
		pattern: "already running",
		msg: UserMessage{
			Message: "An import for this source is already in progress",
			Action:  "Wait for the running import to finish",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many import runs",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The import was cancelled",
			Action:  "Run the import again; batched imports resume from the checkpoint",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The import timed out",
			Action:  "Enable batching and run the import again to resume",
			Code:    "RUN004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The import timed out",
			Action:  "Enable batching and run the import again to resume",
			Code:    "RUN004",
		},
	},

	// =========================================================================
	// Store Connectivity (STORE002)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the target store",
			Action:  "Please try again in a few moments",
			Code:    "STORE002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Connection to the target store was interrupted",
			Action:  "Please try again in a few moments",
			Code:    "STORE002",
		},
	},

	// =========================================================================
	// Run History (HIST001)
	// =========================================================================
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "No import run with that id was recorded",
			Action:  "Check the run id in the import history",
			Code:    "HIST001",
		},
	},

	// =========================================================================
	// Rate Limiting (RATE001)
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
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
//
// Typed configuration and source errors are checked against the pattern list
// first so a more specific code (missing column, invalid CSV) wins over the
// generic code of the kind.
//
// Example:
//
//	msg := MapError(err)
//	// msg.Code == "SIZE001" for an oversized lookup
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var mapErr *InvalidMappingError
	if errors.As(err, &mapErr) {
		return msgInvalidMapping
	}

	if msg, ok := matchPattern(err); ok {
		switch KindOf(err) {
		case KindConfiguration, KindSourceUnavailable, "":
			return msg
		}
	}

	switch KindOf(err) {
	case KindConfiguration:
		return msgInvalidJob
	case KindSourceUnavailable:
		return msgSourceUnavailable
	case KindOversizedResult:
		return msgTooLarge
	case KindStoreMutation:
		return msgStoreRejected
	}

	return defaultMessage
}

func matchPattern(err error) (UserMessage, bool) {
	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg, true
		}
	}
	return UserMessage{}, false
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

// IsUserFacing reports whether err maps to a specific code rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
