package engine

import "fmt"

// ConfigError rejects a batch before any worker starts.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid engine configuration: %s", e.Reason)
}

// ResolveError aborts a check batch whose real-address lookup failed.
// No worker starts and no partial work is performed.
type ResolveError struct {
	Err error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve real address: %v", e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// ErrBatchRunning is returned when a batch is started while another one
// is still in flight.
var ErrBatchRunning = fmt.Errorf("a batch is already running")
