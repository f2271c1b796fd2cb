package session

import "errors"

// Session error taxonomy. Start and submit failures are surfaced to the
// student because they are actionable; per-question save failures are
// handled inside the PersistenceQueue and never reach the caller.
var (
	// ErrInvalidState is returned when an edit, navigation, or lifecycle
	// call arrives in a state that does not allow it.
	ErrInvalidState = errors.New("operation not allowed in current session state")

	// ErrStartFailed wraps any failure while acquiring an attempt. The
	// session returns to Idle; starting is not retried automatically.
	ErrStartFailed = errors.New("attempt could not be started")

	// ErrSubmitFailed wraps a finalize call that did not get a scored
	// response. The session stays in Finalizing and the same idempotent
	// call may be retried; it never returns to an editable state.
	ErrSubmitFailed = errors.New("attempt could not be finalized")

	// ErrUnknownQuestion is returned for answers to questions that are
	// not part of the running exam.
	ErrUnknownQuestion = errors.New("question is not part of this exam")

	// ErrNoPendingAction is returned by Confirmer.Confirm when nothing
	// has been staged.
	ErrNoPendingAction = errors.New("no action is pending confirmation")

	// ErrClockRunning is returned when Start is called on a clock that
	// is already counting down.
	ErrClockRunning = errors.New("clock is already running")
)
