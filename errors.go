package desim

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taxonomy of §7: configuration, scheduling,
// dispatch, and resource failures. Handler panics are not modeled as
// sentinels; see the Stereotype machinery in panic.go.
var (
	// ErrTimeMonotonicityViolation is returned when an insertion targets a
	// simulated time strictly before the queue's current time.
	ErrTimeMonotonicityViolation = errors.New("desim: time monotonicity violation")
	// ErrTimeOverflow is returned when simulated time arithmetic would
	// overflow its representable range.
	ErrTimeOverflow = errors.New("desim: simulated time overflow")
	// ErrQueueEmpty is returned by ExtractMin on an empty calendar queue.
	ErrQueueEmpty = errors.New("desim: calendar queue is empty")
	// ErrGateAlreadyConnected is returned by Connect when the source gate's
	// next pointer is already set.
	ErrGateAlreadyConnected = errors.New("desim: gate already connected")
	// ErrTopologyFrozen is returned by Topology.AddModule, Topology.Connect
	// and Topology.SetParam once Runtime.Run has frozen the topology.
	// Module.AddGate does not check the freeze.
	ErrTopologyFrozen = errors.New("desim: topology frozen after sim start")
	// ErrInvalidGateDirection is returned when a traversal would enter a
	// gate whose service type disallows forwarding.
	ErrInvalidGateDirection = errors.New("desim: invalid gate direction")
	// ErrPayloadNotCloneable is returned when Message.Clone is called on a
	// payload that does not implement Cloner.
	ErrPayloadNotCloneable = errors.New("desim: payload not cloneable")
	// ErrChannelDropped is the signal (not necessarily fatal) raised when a
	// channel with a drop policy discards a message.
	ErrChannelDropped = errors.New("desim: channel dropped message")
	// ErrChannelQueueOverflow names the condition of a channel's bounded
	// queue exceeding its bound. No function in this package returns it:
	// the condition is reported through TransmitResult.OverflowSignal and
	// Channel.OverflowCount, and the message is still queued.
	ErrChannelQueueOverflow = errors.New("desim: channel queue overflow")
	// ErrParse is returned by parameter handle type conversion on failure.
	ErrParse = errors.New("desim: parameter parse error")
	// ErrTopologyCycle is returned when gate wiring would create a cycle in
	// the next-pointer chain.
	ErrTopologyCycle = errors.New("desim: topology cycle")
	// ErrModuleNotRunning is returned (wrapped in a DispatchError) when a
	// send is attempted while the runtime is neither setting up nor ticking.
	ErrModuleNotRunning = errors.New("desim: module not running")
	// ErrNoCurrentModule is returned by context accessors called outside of
	// a handler invocation.
	ErrNoCurrentModule = errors.New("desim: no current module context")
)

// RuntimeError wraps a fatal error returned to the driver, grounded on the
// cause-chain pattern of a typical panic/aggregate error type: it carries
// the originating error plus the simulated time and event count at which
// the run was aborted.
type RuntimeError struct {
	Cause   error
	SimTime SimTime
	Events  uint64
	Phase   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("desim: fatal error during %s at t=%s (event #%d): %v", e.Phase, e.SimTime, e.Events, e.Cause)
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// ConfigError represents a topology or parameter configuration failure,
// surfaced at build time, before a run starts.
type ConfigError struct {
	Cause   error
	Message string
}

func (e *ConfigError) Error() string {
	if e.Message == "" {
		return "desim: configuration error"
	}
	return "desim: configuration error: " + e.Message
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// DispatchError represents a non-fatal error surfaced to the calling
// handler (e.g. no gate named, downcast failure); it does not abort the
// run.
type DispatchError struct {
	Cause   error
	Message string
}

func (e *DispatchError) Error() string {
	if e.Message == "" {
		return "desim: dispatch error"
	}
	return "desim: dispatch error: " + e.Message
}

func (e *DispatchError) Unwrap() error {
	return e.Cause
}

// WrapError wraps an error with a message, preserving the cause chain such
// that errors.Is(result, cause) is true.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
