package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/habitmaster/internal/constants"
	"github.com/julianstephens/habitmaster/internal/logger"
)

var (
	// ErrValidation marks malformed input to a create or edit operation.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyCompletedToday is the expected refusal of the daily gate.
	ErrAlreadyCompletedToday = errors.New("already completed today")
	// ErrAuthenticationMismatch is returned when the current password does not match.
	ErrAuthenticationMismatch = errors.New("current password does not match")
	// ErrSyncFailure marks any failed repository read or write.
	ErrSyncFailure = errors.New("sync failure")
	// ErrRestoreInconsistency marks a restore that could not be applied as a single unit.
	ErrRestoreInconsistency = errors.New("restore could not be applied atomically")
	// ErrNotFound is returned when a profile, habit or backup does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNothingToBackup is returned when a backup is requested for an account without profiles.
	ErrNothingToBackup = errors.New("nothing to back up")
)

// ValidationError describes which field was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// SyncError wraps a repository failure with the operation that produced it.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is lets errors.Is match both ErrSyncFailure and the wrapped cause.
func (e *SyncError) Is(target error) bool { return target == ErrSyncFailure }

func (e *SyncError) Unwrap() error { return e.Err }

// Sync wraps err as a SyncError. Taxonomy errors that already carry meaning
// (validation, not found, authentication, gate refusal) pass through untouched.
func Sync(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsExpected(err) || errors.Is(err, ErrSyncFailure) {
		return err
	}
	return &SyncError{Op: op, Err: err}
}

// IsExpected reports whether err is a refused-but-expected outcome that
// should be shown to the user without being treated as a fault.
func IsExpected(err error) bool {
	return errors.Is(err, ErrAlreadyCompletedToday) ||
		errors.Is(err, ErrAuthenticationMismatch) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNothingToBackup)
}

// UserMessage maps an error to the text shown to the user.
func UserMessage(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyCompletedToday):
		return constants.CompletionRefusedMessage
	case errors.Is(err, ErrAuthenticationMismatch):
		return "current password is incorrect"
	case errors.Is(err, ErrNothingToBackup):
		return "there are no profiles to back up"
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrRestoreInconsistency):
		return "restore failed and was rolled back; your current data is unchanged"
	case errors.Is(err, ErrSyncFailure):
		return fmt.Sprintf("could not reach storage: %v", err)
	default:
		return err.Error()
	}
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
