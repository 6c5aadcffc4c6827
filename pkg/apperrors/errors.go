package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDraftNotFound       = errors.New("draft not found")
	ErrThreadNotFound      = errors.New("thread not found")
	ErrEntityDraftNotFound = errors.New("entity draft not found")
	ErrCampaignNotFound    = errors.New("campaign not found")

	// ErrInvalidStepTransition is returned when a wizard step change targets
	// a step that is not reachable from the current one.
	ErrInvalidStepTransition = errors.New("invalid step transition")

	// ErrInvalidStatusTransition is returned for canon status edges outside
	// draft->approved, approved->canonical, approved->draft, canonical->deprecated.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrCanonicalMutationRejected is a contract violation: something other
	// than ApplyToCampaign/Retcon attempted to alter a canonical entity.
	// Callers must treat it as fatal to the operation, never retry it.
	ErrCanonicalMutationRejected = errors.New("canonical mutation rejected")

	// ErrIntentLocked is returned when the campaign intent is edited after
	// the campaign has canonical entities, outside an explicit migration.
	ErrIntentLocked = errors.New("campaign intent is locked")

	ErrGenerationTimeout = errors.New("generation timeout")
	ErrStreamFinalized   = errors.New("generation stream already finalized")
)

// PatchValidationError reports a patch that targets an unknown or
// type-mismatched field path. It is surfaced immediately, no retry.
type PatchValidationError struct {
	Path   string
	Reason string
}

func (e *PatchValidationError) Error() string {
	return fmt.Sprintf("invalid patch for %q: %s", e.Path, e.Reason)
}

// IsPatchValidation reports whether err is (or wraps) a PatchValidationError.
func IsPatchValidation(err error) bool {
	var pe *PatchValidationError
	return errors.As(err, &pe)
}
