package race

import "errors"

// Validation errors reject malformed input.
var (
	ErrMissingRunnerID = errors.New("runner id is required")
	ErrInvalidInput    = errors.New("invalid input")
)

// State conflicts reject an operation the current race state does not allow.
var (
	ErrQueueEmpty        = errors.New("queue is empty")
	ErrInsufficientQueue = errors.New("at least two runners must be queued to skip")
	ErrAlreadyQueued     = errors.New("runner is already queued")
	ErrAlreadyRunning    = errors.New("runner is currently running")
	ErrNotRunning        = errors.New("no runner is on the track")
	ErrNothingToUndo     = errors.New("nothing to undo")
	ErrLapFinalized      = errors.New("lap is already finalized")
)

// ErrNotFound is returned when a runner, queue entry or check-in does not exist.
var ErrNotFound = errors.New("not found")

// IsValidation reports malformed input from the caller.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingRunnerID) || errors.Is(err, ErrInvalidInput)
}

// IsStateConflict reports an operation the current queue or track state
// rejects, such as starting the next runner with an empty queue.
func IsStateConflict(err error) bool {
	for _, target := range []error{
		ErrQueueEmpty, ErrInsufficientQueue, ErrAlreadyQueued, ErrAlreadyRunning,
		ErrNotRunning, ErrNothingToUndo, ErrLapFinalized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports a missing runner, queue entry, lap or check-in.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Code is the machine-readable name of a race error, used in API responses.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissingRunnerID):
		return "MissingRunnerId"
	case errors.Is(err, ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, ErrQueueEmpty):
		return "QueueEmpty"
	case errors.Is(err, ErrInsufficientQueue):
		return "InsufficientQueue"
	case errors.Is(err, ErrAlreadyQueued):
		return "AlreadyQueued"
	case errors.Is(err, ErrAlreadyRunning):
		return "AlreadyRunning"
	case errors.Is(err, ErrNotRunning):
		return "NotRunning"
	case errors.Is(err, ErrNothingToUndo):
		return "NothingToUndo"
	case errors.Is(err, ErrLapFinalized):
		return "LapFinalized"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	default:
		return "StoreError"
	}
}
