// ABOUTME: Disabled telemetry for tests that exercise real write buffers and blocks
// ABOUTME: Components must behave identically with instrumentation turned off

package telemetry

// NewForTesting returns the no-op Telemetry used by package tests
func NewForTesting() Telemetry {
	return NewNoop()
}
