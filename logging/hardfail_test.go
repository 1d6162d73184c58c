//go:build panic_on_error

package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSink_ReportPanicsInHardFailBuilds(t *testing.T) {
	assert.True(t, HardFail())
	assert.PanicsWithError(t, "fatal error: boom", func() {
		Default().Report(errors.New("boom"))
	})
}
