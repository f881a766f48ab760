package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil error", err: nil, expected: ""},
		{name: "simple error", err: errors.New("something went wrong"), expected: "Error: something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Format(tt.err); result != tt.expected {
				t.Errorf("Format(%v) = %q, want %q", tt.err, result, tt.expected)
			}
		})
	}
}

func TestFormatf(t *testing.T) {
	if got := Formatf("habit %q not found", "read"); got != `Error: habit "read" not found` {
		t.Errorf("unexpected Formatf output: %q", got)
	}
}

func TestValidationError(t *testing.T) {
	err := Invalid("title", "must not be blank")
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ValidationError to match ErrValidation")
	}
	wrapped := fmt.Errorf("create habit: %w", err)
	var verr *ValidationError
	if !errors.As(wrapped, &verr) {
		t.Fatal("expected errors.As to find ValidationError")
	}
	if verr.Field != "title" {
		t.Errorf("expected field title, got %q", verr.Field)
	}
}

func TestSync(t *testing.T) {
	if Sync("op", nil) != nil {
		t.Error("Sync(nil) should be nil")
	}

	err := Sync("update habit", sql.ErrConnDone)
	if !errors.Is(err, ErrSyncFailure) {
		t.Error("expected sync failure")
	}
	if !errors.Is(err, sql.ErrConnDone) {
		t.Error("expected cause to be preserved")
	}

	// Expected outcomes are not reclassified as sync failures
	for _, expected := range []error{ErrAlreadyCompletedToday, ErrNotFound, Invalid("name", "blank"), ErrAuthenticationMismatch} {
		if got := Sync("op", expected); errors.Is(got, ErrSyncFailure) {
			t.Errorf("Sync(%v) should pass through, got sync failure", expected)
		}
	}

	// Double wrapping keeps the innermost op
	twice := Sync("outer", err)
	var serr *SyncError
	if !errors.As(twice, &serr) || serr.Op != "update habit" {
		t.Errorf("expected inner op to be kept, got %v", twice)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"gate", fmt.Errorf("complete: %w", ErrAlreadyCompletedToday), "can only mark complete again after local midnight"},
		{"password", ErrAuthenticationMismatch, "current password is incorrect"},
		{"validation", Invalid("title", "must not be blank"), "invalid title: must not be blank"},
		{"restore", ErrRestoreInconsistency, "restore failed and was rolled back; your current data is unchanged"},
		{"sync", Sync("list profiles", errors.New("disk I/O error")), "could not reach storage: list profiles: disk I/O error"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsExpected(t *testing.T) {
	if !IsExpected(ErrAlreadyCompletedToday) {
		t.Error("gate refusal is expected")
	}
	if IsExpected(Sync("op", errors.New("x"))) {
		t.Error("sync failures are faults")
	}
}
