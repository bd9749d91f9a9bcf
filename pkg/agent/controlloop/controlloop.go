// Package controlloop implements the per-workload state machine that owns
// one workload instance's lifecycle from creation to deletion, restructured
// from a goroutine-per-task executeContainer/stopContainer
// pattern into an explicit state machine over a single serialized command
// channel.
package controlloop

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ankaios-project/ankaios-core/pkg/agent/clock"
	"github.com/ankaios-project/ankaios-core/pkg/agent/statechecker"
	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
	"github.com/rs/zerolog"
)

// ControlLoop owns one workload's lifecycle. Every field below state is
// touched only from the run goroutine; Send is the only entry point
// safe to call from other goroutines.
type ControlLoop struct {
	workloadName string
	agentName    string

	adaptor  runtime.Adaptor
	deps     DependencySnapshot
	observer Observer
	clk      clock.Clock
	cfg      Config
	logger   zerolog.Logger

	cmds chan Command
	done chan struct{}

	state        atomic.Int32 // State, read cross-goroutine via State() by the manager's dependency re-evaluation
	spec         *ankaios.Workload
	instanceName ankaios.WorkloadInstanceName
	handle       runtime.Handle
	checkerRun   *statechecker.Runner
	obsCh        chan ankaios.ExecutionState

	retryCount  int
	retryTimer  clock.Timer
	lastObserve ankaios.ExecutionState
}

// New creates a ControlLoop for workloadName, not yet started.
func New(workloadName, agentName string, adaptor runtime.Adaptor, deps DependencySnapshot, observer Observer, clk clock.Clock, cfg Config, logger zerolog.Logger) *ControlLoop {
	return &ControlLoop{
		workloadName: workloadName,
		agentName:    agentName,
		adaptor:      adaptor,
		deps:         deps,
		observer:     observer,
		clk:          clk,
		cfg:          cfg,
		logger:       logger,
		cmds:         make(chan Command, commandQueueDepth),
		done:         make(chan struct{}),
		obsCh:        make(chan ankaios.ExecutionState, 8),
	}
}

// Send enqueues a command, blocking if the channel is full rather than
// dropping it, per the backpressure policy of the concurrency model.
func (c *ControlLoop) Send(cmd Command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

// Run processes commands until a DELETE completes or ctx is cancelled.
// Intended to be invoked as `go loop.Run(ctx)` by the owning manager.
func (c *ControlLoop) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case obs := <-c.obsCh:
			c.handleObservation(obs)
		case cmd := <-c.cmds:
			if !c.handleCommand(ctx, cmd) {
				return
			}
		}
	}
}

func (c *ControlLoop) setState(s State) {
	c.state.Store(int32(s))
}

func (c *ControlLoop) getState() State {
	return State(c.state.Load())
}

func (c *ControlLoop) handleCommand(ctx context.Context, cmd Command) bool {
	switch cmd.Kind {
	case CmdCreate:
		c.spec = cmd.Spec
		c.instanceName = ankaios.InstanceName(c.workloadName, cmd.Spec)
		c.tryStart(ctx)
	case CmdAdopt:
		c.spec = cmd.Spec
		c.instanceName = ankaios.InstanceName(c.workloadName, cmd.Spec)
		c.doAdopt(ctx, cmd.Handle)
	case CmdUpdate:
		c.handleUpdate(ctx, cmd.Spec)
	case CmdDelete:
		c.handleDelete(ctx)
		return false
	case CmdRetry:
		if c.getState() == StateRetrying {
			c.tryStart(ctx)
		}
	case CmdDependencyChanged:
		if c.getState() == StateWaitingDependencies {
			c.tryStart(ctx)
		}
	}
	return true
}

// tryStart evaluates dependencies and either parks in
// StateWaitingDependencies or proceeds to create.
func (c *ControlLoop) tryStart(ctx context.Context) {
	if unmet := c.unmetDependency(); unmet != "" {
		c.setState(StateWaitingDependencies)
		c.publish(ankaios.ExecutionState{State: ankaios.Pending, Substate: ankaios.SubstateWaitingToStart, AdditionalInfo: "waiting on " + unmet})
		return
	}
	c.doCreate(ctx)
}

func (c *ControlLoop) unmetDependency() string {
	for name, cond := range c.spec.Dependencies {
		state, ok := c.deps.State(name)
		if !ok {
			return name
		}
		if !dependencySatisfied(cond, state) {
			return name
		}
	}
	return ""
}

func dependencySatisfied(cond ankaios.DependencyCondition, state ankaios.ExecutionState) bool {
	switch cond {
	case ankaios.DependencyRunning:
		return state.State == ankaios.Running
	case ankaios.DependencySucceeded:
		return state.State == ankaios.Succeeded
	case ankaios.DependencyFailed:
		return state.State == ankaios.Failed
	default:
		return false
	}
}

func (c *ControlLoop) doCreate(ctx context.Context) {
	c.setState(StateCreating)
	handle, checker, err := c.adaptor.CreateWorkload(ctx, c.instanceName, c.spec)
	if err != nil {
		c.onCreateFailure(ctx, err)
		return
	}

	c.handle = handle
	c.retryCount = 0
	c.setState(StateRunning)
	c.publish(ankaios.ExecutionState{State: ankaios.Running})
	c.checkerRun = statechecker.Start(checker, c.obsCh)
}

// doAdopt monitors an already-running instance surfaced by
// GetReusableWorkloads instead of issuing a CreateWorkload call, so a
// reconnect resumes a survivor rather than recreating it.
func (c *ControlLoop) doAdopt(ctx context.Context, handle runtime.Handle) {
	checker, err := c.adaptor.WatchWorkload(ctx, handle)
	if err != nil {
		c.onCreateFailure(ctx, err)
		return
	}

	c.handle = handle
	c.retryCount = 0
	c.setState(StateRunning)
	c.publish(ankaios.ExecutionState{State: ankaios.Running})
	c.checkerRun = statechecker.Start(checker, c.obsCh)
}

func (c *ControlLoop) onCreateFailure(ctx context.Context, err error) {
	if !runtime.IsRetriable(err) {
		c.setState(StateFailed)
		c.publish(ankaios.ExecutionState{State: ankaios.Failed, AdditionalInfo: err.Error()})
		return
	}

	c.retryCount++
	if c.retryCount > c.cfg.RetryLimit {
		c.setState(StateFailed)
		c.publish(ankaios.ExecutionState{State: ankaios.Failed, AdditionalInfo: fmt.Sprintf("retry limit exceeded: %v", err), RetryCount: c.retryCount})
		return
	}

	c.setState(StateRetrying)
	c.publish(ankaios.ExecutionState{State: ankaios.Pending, Substate: ankaios.SubstateStartingFailed, AdditionalInfo: err.Error(), RetryCount: c.retryCount})
	c.scheduleRetry(ctx)
}

func (c *ControlLoop) scheduleRetry(ctx context.Context) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = c.clk.AfterFunc(c.cfg.RetryDelay, func() {
		c.Send(Command{Kind: CmdRetry})
	})
}

func (c *ControlLoop) stopObserving() {
	if c.checkerRun != nil {
		c.checkerRun.Stop()
		c.checkerRun = nil
	}
}

func (c *ControlLoop) handleObservation(obs ankaios.ExecutionState) {
	c.lastObserve = obs
	c.publish(obs)

	if obs.State != ankaios.Succeeded && obs.State != ankaios.Failed {
		return
	}
	if !c.restartsOn(obs.State) {
		return
	}

	c.setState(StateRestarting)
	c.stopObserving()
	ctx := context.Background()
	if err := c.adaptor.DeleteWorkload(ctx, c.handle); err != nil {
		c.logger.Warn().Err(err).Str("instance", c.instanceName.String()).Msg("cleanup before restart failed")
	}
	c.doCreate(ctx)
}

func (c *ControlLoop) restartsOn(kind ankaios.ExecutionStateKind) bool {
	switch c.spec.RestartPolicy {
	case ankaios.RestartAlways:
		return true
	case ankaios.RestartOnFailure:
		return kind == ankaios.Failed
	default:
		return false
	}
}

func (c *ControlLoop) handleUpdate(ctx context.Context, newSpec *ankaios.Workload) {
	newHash := ankaios.ComputeInstanceHash(c.workloadName, newSpec)
	if c.getState() == StateInitial || c.getState() == StateWaitingDependencies {
		c.spec = newSpec
		c.instanceName = ankaios.InstanceName(c.workloadName, newSpec)
		c.tryStart(ctx)
		return
	}

	if newHash == c.instanceName.ConfigHash {
		c.spec = newSpec
		return
	}

	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	c.setState(StateStopping)
	c.publish(ankaios.ExecutionState{State: ankaios.Stopping, Substate: ankaios.SubstateRequested})
	c.stopObserving()
	if err := c.adaptor.DeleteWorkload(ctx, c.handle); err != nil {
		c.logger.Warn().Err(err).Str("instance", c.instanceName.String()).Msg("delete before recreate failed")
	}
	c.publish(ankaios.ExecutionState{State: ankaios.Removed})

	c.spec = newSpec
	c.instanceName = ankaios.WorkloadInstanceName{WorkloadName: c.workloadName, AgentName: newSpec.Agent, ConfigHash: newHash}
	c.retryCount = 0
	c.tryStart(ctx)
}

func (c *ControlLoop) handleDelete(ctx context.Context) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}

	c.setState(StateStopping)
	c.publish(ankaios.ExecutionState{State: ankaios.Stopping, Substate: ankaios.SubstateRequested})
	c.stopObserving()

	if c.handle.ContainerID != "" {
		if err := c.adaptor.DeleteWorkload(ctx, c.handle); err != nil {
			c.logger.Warn().Err(err).Str("instance", c.instanceName.String()).Msg("delete failed")
		}
	}

	c.setState(StateRemoved)
	c.publish(ankaios.ExecutionState{State: ankaios.Removed})
}

func (c *ControlLoop) publish(state ankaios.ExecutionState) {
	if state.Timestamp.IsZero() {
		state.Timestamp = c.clk.Now()
	}
	c.observer.ObserveState(c.instanceName, state)
}

// State reports the loop's current structural state, for tests and
// introspection.
func (c *ControlLoop) State() State {
	return c.getState()
}

// WaitStopped blocks until Run has returned, either because ctx was
// cancelled or a DELETE command was processed.
func (c *ControlLoop) WaitStopped() {
	<-c.done
}
