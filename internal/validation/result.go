package validation

import (
	"fmt"

	"github.com/soteldo/umbra/pkg/schema"
)

// Issue is a single validation finding anchored to a location in the graph.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Result aggregates the findings of a validation run. Warnings do not make
// the graph invalid; they flag constructs that are legal but likely wrong.
type Result struct {
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// AddError records a blocking finding.
func (r *Result) AddError(path, message string) {
	r.Errors = append(r.Errors, Issue{Path: path, Message: message})
}

// AddWarning records a non-blocking finding.
func (r *Result) AddWarning(path, message string) {
	r.Warnings = append(r.Warnings, Issue{Path: path, Message: message})
}

// Merge appends all findings of other into r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Valid reports whether the run produced no errors.
func (r *Result) Valid() bool {
	return len(r.Errors) == 0
}

// ToError converts the result into a single error, or nil when valid.
// All findings are carried in the error details for editor display.
func (r *Result) ToError() error {
	if r.Valid() {
		return nil
	}

	violations := make([]string, 0, len(r.Errors))
	for _, i := range r.Errors {
		violations = append(violations, i.String())
	}

	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("graph validation failed with %d errors", len(violations))
	}

	details := map[string]any{"violations": violations}
	if len(r.Warnings) > 0 {
		warnings := make([]string, 0, len(r.Warnings))
		for _, i := range r.Warnings {
			warnings = append(warnings, i.String())
		}
		details["warnings"] = warnings
	}

	return schema.NewError(schema.ErrCodeValidation, msg).WithDetails(details)
}
