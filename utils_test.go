package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureDebug(debug bool) (*AppLogger, *[]string) {
	var lines []string
	al := &AppLogger{debug: debug}
	al.debugf = func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	return al, &lines
}

func TestDebugLogGoesToTheLoggerSink(t *testing.T) {
	prev := appLogger
	t.Cleanup(func() { appLogger = prev })

	al, lines := captureDebug(true)
	appLogger = al
	DebugLog("transitionPhase", "Stale call for game %s", "g1")

	assert.Equal(t, []string{"[DEBUG] [transitionPhase] Stale call for game g1"}, *lines)
}

func TestDebugLogSilentUnlessEnabled(t *testing.T) {
	prev := appLogger
	t.Cleanup(func() { appLogger = prev })

	al, lines := captureDebug(false)
	appLogger = al
	DebugLog("scheduler", "Armed %s", "night")

	assert.Empty(t, *lines)
}

func TestNewTestLoggerRoutesDebugToT(t *testing.T) {
	tl := NewTestLogger(t)
	assert.NotNil(t, tl.debugf, "engine debug output lands in the test log")
}
