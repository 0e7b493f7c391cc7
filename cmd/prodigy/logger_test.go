package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerAcceptsKnownLevelsAndFormats(t *testing.T) {
	logger, err := initLogger("debug", "json")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestInitLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := initLogger("not-a-level", "simple")
	require.Error(t, err)
}
