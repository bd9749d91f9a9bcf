package controlloop

import (
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
)

// CommandKind enumerates the control loop's single serialized command
// channel's FIFO input alphabet.
type CommandKind int

const (
	CmdCreate CommandKind = iota
	CmdAdopt
	CmdUpdate
	CmdDelete
	CmdRetry
	CmdDependencyChanged
)

func (k CommandKind) String() string {
	switch k {
	case CmdCreate:
		return "CREATE"
	case CmdAdopt:
		return "ADOPT"
	case CmdUpdate:
		return "UPDATE"
	case CmdDelete:
		return "DELETE"
	case CmdRetry:
		return "RETRY"
	case CmdDependencyChanged:
		return "DEPENDENCY_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Command is one entry on a control loop's command channel. Spec carries
// the desired workload for CREATE/UPDATE/ADOPT; it is nil for DELETE,
// RETRY and DEPENDENCY_CHANGED. Handle carries the already-running
// instance's runtime handle for ADOPT; it is the zero value otherwise.
type Command struct {
	Kind   CommandKind
	Spec   *ankaios.Workload
	Handle runtime.Handle
}

// State is the control loop's structural position, distinct from the
// ExecutionState observations it reports upstream (RUNNING covers the
// whole period from first successful create through eventual SUCCEEDED
// observations or a restart, since the loop keeps owning the instance
// either way until a DELETE arrives or restartPolicy triggers recreation.
// FAILED is terminal: reached only when creation itself never succeeded,
// either because the error was non-retriable or the retry limit was
// exceeded).
type State int

const (
	StateInitial State = iota
	StateWaitingDependencies
	StateCreating
	StateRunning
	StateStopping
	StateRestarting
	StateRetrying
	StateRemoved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "INITIAL"
	case StateWaitingDependencies:
		return "WAITING_DEPENDENCIES"
	case StateCreating:
		return "CREATING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateRestarting:
		return "RESTARTING"
	case StateRetrying:
		return "RETRYING"
	case StateRemoved:
		return "REMOVED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// DependencySnapshot is the read-only view onto the agent-local
// WorkloadStateStore a control loop evaluates its dependencies against.
type DependencySnapshot interface {
	State(workloadName string) (ankaios.ExecutionState, bool)
}

// Observer receives every ExecutionState the loop produces, so the
// manager can persist it locally and forward it to the Server.
type Observer interface {
	ObserveState(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState)
}

// Config carries the tunables spec.md §9 leaves as design parameters.
type Config struct {
	RetryLimit int
	RetryDelay time.Duration
}

// DefaultConfig returns the design defaults: 20 attempts, 1 second apart.
func DefaultConfig() Config {
	return Config{RetryLimit: 20, RetryDelay: time.Second}
}

const commandQueueDepth = 32
