//go:build panic_on_error

package logging

const hardFail = true
