package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the evaluation pipeline.
var (
	// ErrCollaborator wraps failures of the external text classifier or
	// generator. An inability to classify is an unknown, not negative
	// evidence, so it must surface distinctly from "criterion missing".
	ErrCollaborator = errors.New("collaborator failure")

	// ErrRecordNotFound indicates a stored record does not exist.
	ErrRecordNotFound = errors.New("record not found")
)

// ConfigurationError reports a structurally invalid rule document entry.
// It is fatal at load time; evaluation never raises it.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// CollaboratorError reports an unreachable or malformed external
// collaborator response. Callers may retry at the invocation boundary.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is matches ErrCollaborator so callers can classify the failure without
// knowing which collaborator produced it.
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// NewCollaboratorError wraps a collaborator failure.
func NewCollaboratorError(collaborator string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}
