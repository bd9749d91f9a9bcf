// Package agent implements the Agent Workload Manager: the node-local
// process that owns a set of per-workload control loops and a
// WorkloadStateStore mirroring the cluster-wide map, reacting to
// ServerHello/UpdateWorkload messages pushed down the Connect stream
// instead of polling.
package agent

import (
	"context"
	"sync"

	"github.com/ankaios-project/ankaios-core/pkg/agent/clock"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlapi"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlloop"
	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/rs/zerolog"
)

// Manager owns every control loop running on this node plus the local
// mirror of workload state used for dependency evaluation, in the shape
// of a containers map[string]*Container + containersMu idiom.
type Manager struct {
	agentName string
	adaptor   runtime.Adaptor
	cfg       controlloop.Config
	clk       clock.Clock
	logger    zerolog.Logger

	onStateObserved func(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState)
	controlAPI      *controlapi.Controller // nil if workloads on this agent never request one

	mu          sync.RWMutex
	loops       map[string]*loopHandle                       // workload name -> handle
	localStates map[string]ankaios.ExecutionState             // workload name -> latest observation, for dependency checks
	reusable    map[ankaios.WorkloadInstanceName]runtime.Handle // populated by AdoptReusableWorkloads, drained as matching instances are started
}

type loopHandle struct {
	loop     *controlloop.ControlLoop
	cancel   context.CancelFunc
	instance ankaios.WorkloadInstanceName
}

// New creates a Manager for agentName. onStateObserved is invoked for
// every ExecutionState any control loop reports, so the caller can push
// an UpdateWorkloadState envelope upstream; it must not block. controlAPI
// may be nil, in which case workloads requesting a Control Interface
// simply never get one.
func New(agentName string, adaptor runtime.Adaptor, cfg controlloop.Config, clk clock.Clock, logger zerolog.Logger, onStateObserved func(ankaios.WorkloadInstanceName, ankaios.ExecutionState), controlAPI *controlapi.Controller) *Manager {
	return &Manager{
		agentName:       agentName,
		adaptor:         adaptor,
		cfg:             cfg,
		clk:             clk,
		logger:          logger,
		onStateObserved: onStateObserved,
		controlAPI:      controlAPI,
		loops:           map[string]*loopHandle{},
		localStates:     map[string]ankaios.ExecutionState{},
		reusable:        map[ankaios.WorkloadInstanceName]runtime.Handle{},
	}
}

// State implements controlloop.DependencySnapshot.
func (m *Manager) State(workloadName string) (ankaios.ExecutionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.localStates[workloadName]
	return s, ok
}

// ObserveState implements controlloop.Observer: it persists the
// observation locally, notifies any loop whose dependency might now be
// satisfied, then forwards upstream.
func (m *Manager) ObserveState(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState) {
	m.mu.Lock()
	if state.Terminal() {
		delete(m.localStates, instance.WorkloadName)
	} else {
		m.localStates[instance.WorkloadName] = state
	}
	waiting := m.waitingLoopsLocked()
	m.mu.Unlock()

	for _, loop := range waiting {
		loop.Send(controlloop.Command{Kind: controlloop.CmdDependencyChanged})
	}

	if m.onStateObserved != nil {
		m.onStateObserved(instance, state)
	}
}

// waitingLoopsLocked returns every loop currently parked on an unmet
// dependency. Every state change re-evaluates all waiting loops rather
// than tracking a reverse dependency index, since dependency graphs are
// small and this runs at most once per observation.
func (m *Manager) waitingLoopsLocked() []*controlloop.ControlLoop {
	var out []*controlloop.ControlLoop
	for _, h := range m.loops {
		if h.loop.State() == controlloop.StateWaitingDependencies {
			out = append(out, h.loop)
		}
	}
	return out
}

// HandleServerHello seeds the dependency-evaluation mirror from the
// cluster-wide snapshot attached to hello, then applies the agent's full
// assigned set, treating already-running instances (matching hash) as
// resumption after reconnect rather than recreation.
func (m *Manager) HandleServerHello(ctx context.Context, hello *ankpb.ServerHello) {
	m.seedStates(hello.WorkloadStates)
	m.applyDelta(ctx, hello.Delta)
}

// HandleUpdateWorkload applies an incremental desired-state delta pushed
// by the Server.
func (m *Manager) HandleUpdateWorkload(ctx context.Context, update *ankpb.UpdateWorkload) {
	m.applyDelta(ctx, update.Delta)
}

// HandleUpdateWorkloadState applies a cluster-wide actual-state delta
// broadcast by the Server (an observation from this agent or any other) so
// a dependency on a workload owned by a different agent is evaluated
// against a genuinely cluster-wide view instead of this agent's own
// observations.
func (m *Manager) HandleUpdateWorkloadState(ctx context.Context, upd *ankpb.UpdateWorkloadState) {
	m.mu.Lock()
	if upd.State.Terminal() {
		delete(m.localStates, upd.Instance.WorkloadName)
	} else {
		m.localStates[upd.Instance.WorkloadName] = upd.State
	}
	waiting := m.waitingLoopsLocked()
	m.mu.Unlock()

	for _, loop := range waiting {
		loop.Send(controlloop.Command{Kind: controlloop.CmdDependencyChanged})
	}
}

// seedStates merges a cluster-wide snapshot into the dependency-evaluation
// mirror, keeping only the latest state per workload name since State
// is looked up by name regardless of which agent or instance hash reported
// it.
func (m *Manager) seedStates(states ankaios.WorkloadStatesMap) {
	if len(states) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, byWorkload := range states {
		for workload, byHash := range byWorkload {
			for _, state := range byHash {
				m.localStates[workload] = state
			}
		}
	}
}

func (m *Manager) applyDelta(ctx context.Context, delta ankpb.WorkloadDelta) {
	for _, instance := range delta.Deleted {
		m.mu.RLock()
		h, ok := m.loops[instance.WorkloadName]
		m.mu.RUnlock()
		if ok {
			h.loop.Send(controlloop.Command{Kind: controlloop.CmdDelete})
			if m.controlAPI != nil {
				m.controlAPI.Stop(instance.WorkloadName)
			}
			go m.reapWhenRemoved(instance.WorkloadName, h.loop)
		}
	}

	for _, added := range delta.Added {
		m.mu.RLock()
		h, exists := m.loops[added.Workload.Name]
		m.mu.RUnlock()

		switch {
		case exists && h.instance.ConfigHash == added.Instance.ConfigHash:
			// Same instance already owned: resumption after reconnect, no-op.
		case exists:
			h.instance = added.Instance
			h.loop.Send(controlloop.Command{Kind: controlloop.CmdUpdate, Spec: added.Workload})
		default:
			m.mu.Lock()
			handle, reused := m.reusable[added.Instance]
			if reused {
				delete(m.reusable, added.Instance)
			}
			m.mu.Unlock()
			if reused {
				m.startAdoptedLoop(ctx, added.Instance, added.Workload, handle)
			} else {
				m.startLoop(ctx, added.Instance, added.Workload)
			}
		}
	}
}

// reapWhenRemoved waits for loop's run goroutine to exit after a DELETE,
// then drops its entry from m.loops so a later re-add of the same
// workload name starts a fresh loop instead of hitting the
// resumption-no-op branch in applyDelta.
func (m *Manager) reapWhenRemoved(workloadName string, loop *controlloop.ControlLoop) {
	loop.WaitStopped()
	m.mu.Lock()
	if h, ok := m.loops[workloadName]; ok && h.loop == loop {
		delete(m.loops, workloadName)
	}
	m.mu.Unlock()
}

func (m *Manager) startLoop(ctx context.Context, instance ankaios.WorkloadInstanceName, spec *ankaios.Workload) {
	m.spawnLoop(ctx, instance, spec, controlloop.Command{Kind: controlloop.CmdCreate, Spec: spec})
}

// startAdoptedLoop starts a loop for an instance GetReusableWorkloads
// reported already running, so it resumes monitoring instead of
// recreating it.
func (m *Manager) startAdoptedLoop(ctx context.Context, instance ankaios.WorkloadInstanceName, spec *ankaios.Workload, handle runtime.Handle) {
	m.spawnLoop(ctx, instance, spec, controlloop.Command{Kind: controlloop.CmdAdopt, Spec: spec, Handle: handle})
}

func (m *Manager) spawnLoop(ctx context.Context, instance ankaios.WorkloadInstanceName, spec *ankaios.Workload, initial controlloop.Command) {
	loopLogger := m.logger.With().Str("workload", spec.Name).Logger()
	loop := controlloop.New(spec.Name, m.agentName, m.adaptor, m, m, m.clk, m.cfg, loopLogger)

	loopCtx, cancel := context.WithCancel(ctx)
	h := &loopHandle{loop: loop, cancel: cancel, instance: instance}

	m.mu.Lock()
	m.loops[spec.Name] = h
	m.mu.Unlock()

	go loop.Run(loopCtx)
	loop.Send(initial)

	if m.controlAPI != nil && spec.ControlInterfaceAccess != nil {
		if err := m.controlAPI.Start(spec.Name, spec.ControlInterfaceAccess); err != nil {
			loopLogger.Warn().Err(err).Msg("start control interface failed")
		}
	}
}

// AdoptReusableWorkloads asks the runtime adaptor for containers already
// running under this agent's name (survivors of an Agent restart or a
// prior connection to the Server) and records them so the next
// ServerHello/UpdateWorkload delta can start matching instances via
// startAdoptedLoop instead of recreating them. It is a best-effort step
// run before processing the first ServerHello.
func (m *Manager) AdoptReusableWorkloads(ctx context.Context) error {
	handles, err := m.adaptor.GetReusableWorkloads(ctx, m.agentName)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, h := range handles {
		m.reusable[h.Instance] = h
	}
	m.mu.Unlock()
	return nil
}

// Stop cancels every running control loop's context. Control loops do not
// attempt a graceful DELETE on shutdown: the workload keeps running so a
// reconnect can adopt it via AdoptReusableWorkloads.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, h := range m.loops {
		h.cancel()
	}
	m.mu.Unlock()

	if m.controlAPI != nil {
		m.controlAPI.StopAll()
	}
}
