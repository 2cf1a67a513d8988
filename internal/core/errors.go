package core

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrJobNotFound        = errors.New("job not found")
	ErrBatchNotFound      = errors.New("batch not found")
	ErrVendorNotFound     = errors.New("vendor not found")
	ErrServiceClosed      = errors.New("vendor service is closed")
	ErrNotAuthorized      = errors.New("not authorized to act on this job")
	ErrDuplicateReference = errors.New("payment reference already used")
	ErrAmountMismatch     = errors.New("submitted amount does not match batch total")
)

// StateConflictError reports an illegal transition together with the job's
// actual current status so the caller can resynchronize instead of retrying.
type StateConflictError struct {
	JobID     string
	Current   JobStatus
	Attempted JobStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("job %s cannot move to %s from %s", e.JobID, e.Attempted, e.Current)
}

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
