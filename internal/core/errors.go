package core

import (
	"errors"
	"fmt"
)

// Kind classifies a fatal import error.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindSourceUnavailable Kind = "source_unavailable"
	KindOversizedResult   Kind = "oversized_result"
	KindStoreMutation     Kind = "store_mutation"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrOversizedResult   = errors.New("oversized result")
	ErrStoreMutation     = errors.New("store mutation failed")
)

var kindSentinels = map[Kind]error{
	KindConfiguration:     ErrConfiguration,
	KindSourceUnavailable: ErrSourceUnavailable,
	KindOversizedResult:   ErrOversizedResult,
	KindStoreMutation:     ErrStoreMutation,
}

// Error is a fatal import error. Op names the step that failed.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func configError(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

func sourceError(op string, err error) error {
	return &Error{Kind: KindSourceUnavailable, Op: op, Message: "source unavailable", Err: err}
}

func oversizedError(op, format string, args ...any) error {
	return &Error{Kind: KindOversizedResult, Op: op, Message: fmt.Sprintf(format, args...)}
}

func storeError(op, message string, err error) error {
	return &Error{Kind: KindStoreMutation, Op: op, Message: message, Err: err}
}

// InvalidMappingError reports a target path with more than one relation hop
// or an empty segment. It is a configuration error.
type InvalidMappingError struct {
	SourceKey  string
	TargetPath string
}

func (e *InvalidMappingError) Error() string {
	return fmt.Sprintf("invalid mapping %q -> %q: relation paths must be <entity>.<field>",
		e.SourceKey, e.TargetPath)
}

// Is makes InvalidMappingError match ErrConfiguration.
func (e *InvalidMappingError) Is(target error) bool {
	return target == ErrConfiguration
}

// KindOf returns the Kind of err, or "" when err is not an import error.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	var me *InvalidMappingError
	if errors.As(err, &me) {
		return KindConfiguration
	}
	return ""
}
