// Package logging is the single place errors and wire traffic are reported.
//
// Behavior is fixed per build:
//
//   - built with -tags panic_on_error, Report panics ("hard fail"), which surfaces
//     problems immediately during development;
//   - otherwise Report logs through glog and execution continues;
//   - built with -tags log_traffic, Trace writes every payload sent and received.
package logging

import (
	"encoding/json"
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/golang/glog"
)

// Trace operation names used by the transports.
const (
	OpSent     = "Sent"
	OpReceived = "Received"
)

// Sink receives errors and optional traffic traces.
type Sink interface {
	Report(err error)
	Trace(op string, payload any)
}

var reportedErrors = metrics.GetOrCreateCounter("querystate_errors_reported_total")

// HardFail reports whether Report panics in this build.
func HardFail() bool { return hardFail }

// TracesTraffic reports whether Trace writes anything in this build.
func TracesTraffic() bool { return traceTraffic }

type glogSink struct{}

// Default returns the glog-backed sink configured by build tags.
func Default() Sink {
	return glogSink{}
}

func (glogSink) Report(err error) {
	if err == nil {
		return
	}
	reportedErrors.Inc()
	if hardFail {
		panic(fmt.Errorf("fatal error: %w", err))
	}
	glog.ErrorDepth(1, err)
}

func (glogSink) Trace(op string, payload any) {
	if !traceTraffic {
		return
	}
	glog.InfoDepth(1, fmt.Sprintf("%-8s %s", op, render(payload)))
}

func render(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%+v", payload)
	}
	return string(data)
}

type discard struct{}

// Discard drops everything. Useful when a component is built without a sink.
var Discard Sink = discard{}

func (discard) Report(error) {}

func (discard) Trace(string, any) {}
