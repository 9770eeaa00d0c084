package desim

// ModuleState represents the lifecycle of a Module, per §3 "Lifecycles":
// created at setup, then starting(0..K-1) stages, then running, then
// ending, then dead.
type ModuleState uint8

const (
	// ModuleCreated indicates the module exists but has not run any
	// at_sim_start stage yet.
	ModuleCreated ModuleState = iota
	// ModuleStarting indicates a multi-stage at_sim_start is in progress;
	// see Module.startStage for the current stage index.
	ModuleStarting
	// ModuleRunning indicates the module is addressable: handlers may be
	// invoked for it (I5).
	ModuleRunning
	// ModuleEnding indicates at_sim_end is running or about to run; the
	// module is no longer addressable.
	ModuleEnding
	// ModuleDead is terminal: the module has been detached from the tree.
	ModuleDead
)

func (s ModuleState) String() string {
	switch s {
	case ModuleCreated:
		return "created"
	case ModuleStarting:
		return "starting"
	case ModuleRunning:
		return "running"
	case ModuleEnding:
		return "ending"
	case ModuleDead:
		return "dead"
	default:
		return "unknown"
	}
}

// addressable reports whether handlers may be invoked for a module in this
// state (I5: a module is addressable iff its lifecycle is running).
func (s ModuleState) addressable() bool {
	return s == ModuleRunning
}

// RuntimeState represents the lifecycle of a Runtime's run() loop.
type RuntimeState uint8

const (
	// RuntimeIdle indicates the runtime has not had Run called yet.
	RuntimeIdle RuntimeState = iota
	// RuntimeSettingUp indicates install_globals/start_lifecycle (the
	// at_sim_start stages) is executing.
	RuntimeSettingUp
	// RuntimeTicking indicates the main extract/dispatch loop is active.
	RuntimeTicking
	// RuntimeEnding indicates end_lifecycle (at_sim_end, reverse order) is
	// executing.
	RuntimeEnding
	// RuntimeDone is terminal for a given Run call.
	RuntimeDone
)

func (s RuntimeState) String() string {
	switch s {
	case RuntimeIdle:
		return "idle"
	case RuntimeSettingUp:
		return "setting-up"
	case RuntimeTicking:
		return "ticking"
	case RuntimeEnding:
		return "ending"
	case RuntimeDone:
		return "done"
	default:
		return "unknown"
	}
}

// ChannelState is the per-channel busy-state machine of §4.E.
type ChannelState uint8

const (
	// ChannelIdle indicates no transmission is in progress.
	ChannelIdle ChannelState = iota
	// ChannelBusy indicates a transmission occupies the channel until
	// Channel.busyUntil.
	ChannelBusy
)

func (s ChannelState) String() string {
	switch s {
	case ChannelIdle:
		return "idle"
	case ChannelBusy:
		return "busy"
	default:
		return "unknown"
	}
}
