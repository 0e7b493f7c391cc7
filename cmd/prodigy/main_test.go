package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

func TestClassifyMapsSentinelsToExitCodes(t *testing.T) {
	cases := []struct {
		err      error
		wantCode int
	}{
		{mrerrors.ErrCancelled, exitInterrupted},
		{mrerrors.ErrConfiguration, exitConfig},
		{mrerrors.ErrWorkflowChanged, exitConfig},
		{mrerrors.ErrNotFound, exitConfig},
		{mrerrors.ErrCorrupted, exitConfig},
		{mrerrors.ErrTimeout, exitExecution},
		{mrerrors.ErrResourceExhaustion, exitExecution},
		{mrerrors.ErrMergeConflict, exitExecution},
	}
	for _, tc := range cases {
		_, code, _ := classify(tc.err)
		assert.Equal(t, tc.wantCode, code, tc.err.Error())
	}
}

func TestClassifyDefaultsToExecutionForUnknownErrors(t *testing.T) {
	_, code, hint := classify(assertErr("boom"))
	assert.Equal(t, exitExecution, code)
	assert.Empty(t, hint)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
