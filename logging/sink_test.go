//go:build !panic_on_error

package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSink_ReportLogsAndContinues(t *testing.T) {
	before := reportedErrors.Get()

	assert.NotPanics(t, func() {
		Default().Report(errors.New("boom"))
		Default().Report(nil)
	})
	assert.Equal(t, before+1, reportedErrors.Get(), "nil errors are not counted")
	assert.False(t, HardFail())
}

func TestDefaultSink_Trace(t *testing.T) {
	assert.NotPanics(t, func() {
		Default().Trace(OpSent, map[string]any{"method": "query"})
		Default().Trace(OpReceived, "raw")
	})
}

func TestRender(t *testing.T) {
	assert.Equal(t, "raw", render("raw"))
	assert.Equal(t, `{"a":1}`, render(map[string]int{"a": 1}))
	assert.Equal(t, "[1 2]", render(stringer("[1 2]")))
}

type stringer string

func (s stringer) String() string { return string(s) }
