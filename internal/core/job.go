package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Job configures one import invocation.
type Job struct {
	// Entity is the target entity records are created in, e.g. "Order".
	Entity string `json:"entity" yaml:"entity" validate:"required"`

	Source SourceSpec `json:"source" yaml:"source"`

	Mappings       []ColumnMapping `json:"mappings" yaml:"mappings" validate:"required,min=1,dive"`
	UpdateMappings []ColumnMapping `json:"updateMappings,omitempty" yaml:"updateMappings,omitempty" validate:"dive"`
	Defaults       []DefaultValue  `json:"defaults,omitempty" yaml:"defaults,omitempty" validate:"dive"`

	Deduplicate DedupSpec    `json:"deduplicate" yaml:"deduplicate"`
	Batching    BatchingSpec `json:"batching" yaml:"batching"`

	// ValidateRequiredColumns checks required-marked columns against the
	// header before anything is formatted.
	ValidateRequiredColumns bool `json:"validateRequiredColumns,omitempty" yaml:"validateRequiredColumns,omitempty"`

	// Logging enables per-batch progress logs at info level.
	Logging bool `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// SourceSpec locates the rows to import.
type SourceSpec struct {
	URL    string `json:"url" yaml:"url" validate:"required"`
	Format string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=csv xlsx"`
	Sheet  string `json:"sheet,omitempty" yaml:"sheet,omitempty"`
}

// DedupSpec configures create-vs-update matching.
type DedupSpec struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	UniqueColumn string `json:"uniqueColumn,omitempty" yaml:"uniqueColumn,omitempty" validate:"required_if=Enabled true"`
	UniqueType   string `json:"uniqueType,omitempty" yaml:"uniqueType,omitempty"`
}

// BatchingSpec configures batched, resumable runs.
type BatchingSpec struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Size    int  `json:"size,omitempty" yaml:"size,omitempty" validate:"gte=0"`

	// Model names the store entity holding checkpoints.
	Model BatchModel `json:"model,omitempty" yaml:"model,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the job's structure. Mapping semantics are checked when
// the job is compiled.
func (j *Job) Validate() error {
	if err := validate.Struct(j); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return configError("validate job", "%s", strings.Join(msgs, "; "))
		}
		return configError("validate job", "%v", err)
	}
	return nil
}

// CheckpointKey is the identity of the job's checkpoint.
func (j *Job) CheckpointKey() CheckpointKey {
	return CheckpointKey{Entity: j.Entity, Source: j.Source.URL}
}

// ParseJob decodes a job from YAML or JSON. JSON is valid YAML, so YAML
// decoding is tried unless the format is declared as JSON.
func ParseJob(data []byte, format string) (*Job, error) {
	var job Job
	switch strings.ToLower(format) {
	case "json", ".json", "application/json":
		dec := json.NewDecoder(strings.NewReader(string(data)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&job); err != nil {
			return nil, configError("parse job", "invalid JSON: %v", err)
		}
	default:
		if err := yaml.Unmarshal(data, &job); err != nil {
			return nil, configError("parse job", "invalid YAML: %v", err)
		}
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadJobFile reads a job from a .yaml, .yml or .json file.
func LoadJobFile(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return ParseJob(data, filepath.Ext(path))
}
