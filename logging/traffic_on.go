//go:build log_traffic

package logging

const traceTraffic = true
