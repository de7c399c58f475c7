package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldError is one validation complaint keyed by the offending option.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []FieldError
	Warnings []FieldError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(field, format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(field, format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  %s: %s\n", err.Field, err.Message))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", warn.Field, warn.Message))
		}
	}

	return sb.String()
}

var isoDateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validDate(s string) bool {
	if !isoDateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Validate checks the options up front, before any work starts. The result
// carries field-keyed messages so callers can surface them per option.
func (o *Options) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	if o.Since != "" && !validDate(o.Since) {
		result.AddError("since", "must be an ISO date (YYYY-MM-DD), got %q", o.Since)
	}
	if o.Until != "" && !validDate(o.Until) {
		result.AddError("until", "must be an ISO date (YYYY-MM-DD), got %q", o.Until)
	}
	if o.WindowDays < 0 {
		result.AddError("window_days", "must not be negative, got %d", o.WindowDays)
	}
	if o.Since != "" && o.WindowDays > 0 {
		result.AddWarning("window_days", "ignored because since is set")
	}

	if o.FindRenamesThreshold < 1 || o.FindRenamesThreshold > 100 {
		result.AddError("find_renames_threshold", "must be in 1..100, got %d", o.FindRenamesThreshold)
	}

	switch o.ChangesetMode {
	case ModeByCommit, ModeByAuthorTime:
	case ModeByTicketID:
		if o.TicketIDPattern == "" {
			result.AddError("ticket_id_pattern", "required when changeset_mode is %s", ModeByTicketID)
		} else if _, err := regexp.Compile(o.TicketIDPattern); err != nil {
			result.AddError("ticket_id_pattern", "invalid regex: %v", err)
		}
	default:
		result.AddError("changeset_mode", "must be one of %s, %s, %s; got %q",
			ModeByCommit, ModeByAuthorTime, ModeByTicketID, o.ChangesetMode)
	}

	if o.AuthorTimeWindowHours < 1 {
		result.AddError("author_time_window_hours", "must be at least 1, got %d", o.AuthorTimeWindowHours)
	}

	switch o.BulkPolicy {
	case BulkExclude, BulkDownweight:
	default:
		result.AddError("bulk_policy", "must be %s or %s; got %q", BulkExclude, BulkDownweight, o.BulkPolicy)
	}

	if o.MinRevisions < 1 {
		result.AddError("min_revisions", "must be at least 1, got %d", o.MinRevisions)
	}
	if o.MinCooccurrence < 1 {
		result.AddError("min_cooccurrence", "must be at least 1, got %d", o.MinCooccurrence)
	}
	if o.ComponentDepth < 1 {
		result.AddError("component_depth", "must be at least 1, got %d", o.ComponentDepth)
	}
	if o.MaxChangesetSize != 0 && o.MaxChangesetSize < 2 {
		result.AddError("max_changeset_size", "must be at least 2 when set, got %d", o.MaxChangesetSize)
	}
	if o.MaxLogicalChangesetSize != 0 && o.MaxLogicalChangesetSize < 2 {
		result.AddError("max_logical_changeset_size", "must be at least 2 when set, got %d", o.MaxLogicalChangesetSize)
	}

	switch o.ValidationMode {
	case ValidationStrict, ValidationSoft, ValidationPermissive:
	default:
		result.AddError("validation_mode", "must be one of %s, %s, %s; got %q",
			ValidationStrict, ValidationSoft, ValidationPermissive, o.ValidationMode)
	}

	for _, glob := range append(append([]string{}, o.IncludePaths...), o.ExcludePaths...) {
		if strings.ContainsRune(glob, '\x00') {
			result.AddError("include_paths", "glob contains NUL byte: %q", glob)
		}
	}

	return result
}
