package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "configuration kind maps to invalid job",
			err:         configError("validate job", "Job.Entity failed %q", "required"),
			wantCode:    "CFG001",
			wantMessage: "The import job configuration is invalid",
		},
		{
			name:        "invalid mapping maps to its own code",
			err:         fmt.Errorf("compile: %w", &InvalidMappingError{SourceKey: "a", TargetPath: "a.b.c"}),
			wantCode:    "CFG002",
			wantMessage: "A mapping target path has an unsupported shape",
		},
		{
			name:        "missing column wins over generic configuration code",
			err:         configError("validate columns", "missing required column(s): email"),
			wantCode:    "CFG003",
			wantMessage: "A required column is missing from the source",
		},
		{
			name:        "no rows",
			err:         configError("validate columns", "no import lines found"),
			wantCode:    "CFG004",
			wantMessage: "The source contains no import lines",
		},
		{
			name:        "source kind maps to source unavailable",
			err:         sourceError("load source", errors.New("GET https://example.com/a.csv: 404 Not Found")),
			wantCode:    "SRC001",
			wantMessage: "The import file could not be read",
		},
		{
			name:        "invalid csv inside a source error",
			err:         sourceError("load source", errors.New("invalid csv at line 3: bare quote")),
			wantCode:    "SRC002",
			wantMessage: "File is not a valid CSV",
		},
		{
			name:        "oversized kind",
			err:         oversizedError("lookup Supplier", "totalCount %d exceeds %d", 20001, 20000),
			wantCode:    "SIZE001",
			wantMessage: "The import is too large to process in one pass",
		},
		{
			name:        "store kind ignores timeout pattern in wrapped text",
			err:         storeError("createManyOrder", "store rejected mutation", errors.New("statement timeout")),
			wantCode:    "STORE001",
			wantMessage: "The target store rejected the import",
		},
		{
			name:        "connection refused",
			err:         errors.New("dial tcp 127.0.0.1:4000: connection refused"),
			wantCode:    "STORE002",
			wantMessage: "Unable to reach the target store",
		},
		{
			name:        "already running",
			err:         errors.New("import already running for this source"),
			wantCode:    "RUN001",
			wantMessage: "An import for this source is already in progress",
		},
		{
			name:        "limiter busy",
			err:         ErrTooManyRuns,
			wantCode:    "RUN002",
			wantMessage: "System is busy processing other imports",
		},
		{
			name:        "deadline",
			err:         fmt.Errorf("batch 2 of 3: %w", errors.New("context deadline exceeded")),
			wantCode:    "RUN004",
			wantMessage: "The import timed out",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("INVALID CSV header"),
			wantCode:    "SRC002",
			wantMessage: "File is not a valid CSV",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := errors.New("rate limit exceeded")
	result := FormatUserError(err)

	expected := "Too many requests (Code: RATE001). Please wait a moment before trying again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "typed error is user facing",
			err:  oversizedError("import", "too large"),
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("batch 1 of 2: %w", storeError("upsertManyOrder", "boom", nil))
	if !errors.Is(err, ErrStoreMutation) {
		t.Error("wrapped store error should match ErrStoreMutation")
	}
	if errors.Is(err, ErrConfiguration) {
		t.Error("store error should not match ErrConfiguration")
	}
	if KindOf(err) != KindStoreMutation {
		t.Errorf("KindOf() = %q, want %q", KindOf(err), KindStoreMutation)
	}

	mapErr := &InvalidMappingError{SourceKey: "x", TargetPath: "a.b.c"}
	if !errors.Is(mapErr, ErrConfiguration) {
		t.Error("InvalidMappingError should match ErrConfiguration")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
}
