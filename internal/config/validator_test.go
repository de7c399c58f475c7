package config

import (
	"testing"
)

func TestDefaultOptionsValidate(t *testing.T) {
	if vr := Default().Validate(); vr.HasErrors() {
		t.Fatalf("defaults must validate: %s", vr.Error())
	}
}

func TestValidateRejectsBadDates(t *testing.T) {
	opts := Default()
	opts.Since = "01-02-2024"
	opts.Until = "2024-13-40"

	vr := opts.Validate()
	if !vr.HasErrors() {
		t.Fatal("expected errors")
	}

	fields := map[string]bool{}
	for _, fe := range vr.Errors {
		fields[fe.Field] = true
	}
	if !fields["since"] || !fields["until"] {
		t.Errorf("errors not keyed by field: %+v", vr.Errors)
	}
}

func TestValidateTicketModeRequiresPattern(t *testing.T) {
	opts := Default()
	opts.ChangesetMode = ModeByTicketID

	vr := opts.Validate()
	if !vr.HasErrors() {
		t.Fatal("by_ticket_id without a pattern must fail validation")
	}
	if vr.Errors[0].Field != "ticket_id_pattern" {
		t.Errorf("field = %q", vr.Errors[0].Field)
	}

	opts.TicketIDPattern = "([A-Z]+-\\d+)"
	if vr := opts.Validate(); vr.HasErrors() {
		t.Errorf("valid pattern rejected: %s", vr.Error())
	}

	opts.TicketIDPattern = "(["
	if vr := opts.Validate(); !vr.HasErrors() {
		t.Error("invalid regex accepted")
	}
}

func TestValidateUnknownEnums(t *testing.T) {
	opts := Default()
	opts.ChangesetMode = "by_magic"
	opts.ValidationMode = "loose"
	opts.BulkPolicy = "ignore"

	vr := opts.Validate()
	if len(vr.Errors) != 3 {
		t.Errorf("expected 3 errors, got %+v", vr.Errors)
	}
}

func TestValidateWindowDaysWarnsWhenSinceSet(t *testing.T) {
	opts := Default()
	opts.Since = "2024-01-01"
	opts.WindowDays = 90

	vr := opts.Validate()
	if vr.HasErrors() {
		t.Fatalf("unexpected errors: %s", vr.Error())
	}
	if len(vr.Warnings) != 1 || vr.Warnings[0].Field != "window_days" {
		t.Errorf("warnings = %+v", vr.Warnings)
	}
}

func TestNormalizeResolvesNullableInts(t *testing.T) {
	opts := &Options{
		MaxChangesetSize:        -1,
		MaxLogicalChangesetSize: -5,
		TopKEdgesPerFile:        -1,
		DecayHalfLifeDays:       -3,
	}
	opts.Normalize()

	if opts.MaxChangesetSize != 0 || opts.MaxLogicalChangesetSize != 0 ||
		opts.TopKEdgesPerFile != 0 || opts.DecayHalfLifeDays != 0 {
		t.Errorf("negative caps must normalize to unset: %+v", opts)
	}
	if opts.Ref != "HEAD" || opts.ChangesetMode != ModeByCommit {
		t.Errorf("missing fields must pick up defaults: %+v", opts)
	}
	if opts.MinRevisions != 1 || opts.MinCooccurrence != 1 {
		t.Errorf("minimums must clamp to 1: %+v", opts)
	}
}
