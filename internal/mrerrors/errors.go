// Package mrerrors defines the error taxonomy shared across the MapReduce
// execution engine. Components wrap these sentinels with fmt.Errorf's %w
// so callers can classify failures with errors.Is/As while the message
// keeps whatever context the wrapping site adds.
package mrerrors

import "errors"

// Sentinel errors for the kinds enumerated in the error-handling design.
// Recovery policy lives with the caller; these just name the kind.
var (
	// ErrNotFound means a checkpoint, DLQ item, or session was requested
	// but does not exist on disk.
	ErrNotFound = errors.New("not found")

	// ErrCorrupted means a checkpoint's integrity hash does not match its
	// recomputed value.
	ErrCorrupted = errors.New("corrupted")

	// ErrVersionMismatch means a checkpoint save raced another writer.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrWorkflowChanged means the workflow text hash no longer matches
	// what a checkpoint was created against.
	ErrWorkflowChanged = errors.New("workflow changed")

	// ErrMergeConflict means a worktree merge-up stopped on conflicting
	// files; the worktree is left for manual resolution.
	ErrMergeConflict = errors.New("merge conflict")

	// ErrCancelled means the job's cancellation signal fired.
	ErrCancelled = errors.New("cancelled")

	// ErrTimeout means a command or agent exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrConfiguration means a workflow or CLI input is structurally
	// invalid (bad JSONPath, unknown field, bad regex). Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceExhaustion means the OS refused a resource (too many
	// open files, out of memory) rather than the workflow itself failing.
	ErrResourceExhaustion = errors.New("resource exhaustion")
)

// CorrelationID derives the correlation id used in log lines and error
// messages: the job id, unmodified. Kept as a named function (rather than
// inlining job.ID everywhere) so the derivation can change in one place
// if the job id format ever does.
func CorrelationID(jobID string) string {
	return jobID
}
