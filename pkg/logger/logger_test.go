package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogUsableBeforeSetup(t *testing.T) {
	assert.NotNil(t, Log)

	// Must not panic even when Setup was never called
	Info("boot message", "key", "value")
	Error("boot error", "key", "value")
}

func TestSetupReplacesHandler(t *testing.T) {
	before := Log
	Setup("test")
	assert.NotNil(t, Log)
	assert.NotSame(t, before, Log)
}
