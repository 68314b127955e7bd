package invites

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the caller lacks administrator scope
	// for the target outfitter.
	ErrUnauthorized = errors.New("caller lacks administrator scope for this outfitter")

	// ErrInvalidRole is returned when the requested role cannot be invited
	ErrInvalidRole = errors.New("invalid member role")

	// ErrAlreadyInvited is returned when an incomplete profile stub already
	// exists for the email. Safe to resend the sign-in link.
	ErrAlreadyInvited = errors.New("member already invited")

	// ErrAlreadyActive is returned when the member completed setup already
	ErrAlreadyActive = errors.New("member setup already complete")

	// ErrNotInvited is returned when resend targets an email with no stub
	ErrNotInvited = errors.New("no pending invitation for this email")

	// ErrNoProfile is returned when completion is attempted without any
	// outfitter scope to create or locate a profile under.
	ErrNoProfile = errors.New("no outfitter scope for profile completion")

	// ErrReconciliationConflict is returned when a redeemed identity does not
	// match a stub's existing back-reference. Requires administrative review.
	ErrReconciliationConflict = errors.New("profile stub linked to a different identity")
)

// Step identifies which remote collaborator a failed invitation step was
// talking to. The three backing services share no transaction, so callers
// need to know which side effects committed before the failure.
type Step string

const (
	StepIdentity Step = "identity"
	StepClaims   Step = "claims"
	StepProfile  Step = "profile"
	StepLink     Step = "link"
	StepNotify   Step = "notify"
)

// StepError wraps an upstream failure with the workflow step it occurred in.
// Steps before the failed one have committed; steps after it never ran.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}

// FailedStep extracts the failed step from an error chain.
// Returns false if the error carries no step information.
func FailedStep(err error) (Step, bool) {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step, true
	}
	return "", false
}
