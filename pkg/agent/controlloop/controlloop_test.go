package controlloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/agent/clock"
	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	fakeruntime "github.com/ankaios-project/ankaios-core/pkg/runtime/fake"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	states []ankaios.ExecutionState
}

func (o *recordingObserver) ObserveState(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) snapshot() []ankaios.ExecutionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]ankaios.ExecutionState(nil), o.states...)
}

func (o *recordingObserver) waitFor(t *testing.T, kind ankaios.ExecutionStateKind) ankaios.ExecutionState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range o.snapshot() {
			if s.State == kind {
				return s
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("observer never saw state %s, got %v", kind, o.snapshot())
	return ankaios.ExecutionState{}
}

type staticDeps struct {
	mu     sync.Mutex
	states map[string]ankaios.ExecutionState
}

func newStaticDeps() *staticDeps {
	return &staticDeps{states: map[string]ankaios.ExecutionState{}}
}

func (d *staticDeps) set(name string, s ankaios.ExecutionState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states[name] = s
}

func (d *staticDeps) State(name string) (ankaios.ExecutionState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[name]
	return s, ok
}

func newTestLoop(adaptor *fakeruntime.Adaptor, deps *staticDeps, obs *recordingObserver, clk clock.Clock) *ControlLoop {
	return New("w", "agent_A", adaptor, deps, obs, clk, Config{RetryLimit: 20, RetryDelay: time.Second}, zerolog.Nop())
}

func TestSimpleCreateReachesRunning(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdCreate, Spec: &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"}})

	obs.waitFor(t, ankaios.Running)
}

func TestDependencyGatingWaitsThenProceeds(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	spec := &ankaios.Workload{
		Name: "app", Agent: "agent_A", Runtime: "fake",
		Dependencies: map[string]ankaios.DependencyCondition{"db": ankaios.DependencyRunning},
	}
	loop.Send(Command{Kind: CmdCreate, Spec: spec})

	obs.waitFor(t, ankaios.Pending)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateWaitingDependencies, loop.State())

	deps.set("db", ankaios.ExecutionState{State: ankaios.Running})
	loop.Send(Command{Kind: CmdDependencyChanged})

	obs.waitFor(t, ankaios.Running)
}

func TestRetryThenSucceedTracksRetryCount(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	fc := clock.NewFake(time.Unix(0, 0))
	loop := newTestLoop(adaptor, deps, obs, fc)

	instance := ankaios.WorkloadInstanceName{WorkloadName: "w", AgentName: "agent_A", ConfigHash: ankaios.ComputeInstanceHash("w", &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"})}
	adaptor.FailNextCreates(instance, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdCreate, Spec: &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"}})

	first := obs.waitFor(t, ankaios.Pending)
	assert.Equal(t, 1, first.RetryCount)

	fc.Advance(time.Second)
	require.Eventually(t, func() bool {
		for _, s := range obs.snapshot() {
			if s.State == ankaios.Pending && s.RetryCount == 2 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	fc.Advance(time.Second)
	obs.waitFor(t, ankaios.Running)
}

func TestUpdateWithHashChangeRecreates(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdCreate, Spec: &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake", RuntimeConfig: "v1"}})
	obs.waitFor(t, ankaios.Running)

	loop.Send(Command{Kind: CmdUpdate, Spec: &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake", RuntimeConfig: "v2"}})

	require.Eventually(t, func() bool {
		states := obs.snapshot()
		sawStopping, sawRemoved, sawRunningAgain := false, false, false
		runningCount := 0
		for _, s := range states {
			switch s.State {
			case ankaios.Stopping:
				sawStopping = true
			case ankaios.Removed:
				sawRemoved = true
			case ankaios.Running:
				runningCount++
			}
		}
		sawRunningAgain = runningCount >= 2
		return sawStopping && sawRemoved && sawRunningAgain
	}, 2*time.Second, time.Millisecond)
}

func TestAdoptResumesWithoutCreate(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	spec := &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("w", spec)
	handle := adaptor.Adopt(instance)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdAdopt, Spec: spec, Handle: handle})

	obs.waitFor(t, ankaios.Running)
	assert.Equal(t, 0, adaptor.CreateCalls())
	assert.Equal(t, StateRunning, loop.State())
}

func TestNonRetriableCreateFailureReportsFailed(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// No RuntimeConfig set: the fake adaptor's CreateWorkload has nothing to
	// fail on, so drive the fatal path directly by arming a non-retriable
	// error for this spec's instance via FailFatalNextCreate.
	spec := &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("w", spec)
	adaptor.FailFatalNextCreate(instance)

	loop.Send(Command{Kind: CmdCreate, Spec: spec})

	obs.waitFor(t, ankaios.Failed)
	require.Eventually(t, func() bool {
		return loop.State() == StateFailed
	}, time.Second, time.Millisecond)
}

func TestDeleteTerminatesLoop(t *testing.T) {
	adaptor := fakeruntime.New()
	obs := &recordingObserver{}
	deps := newStaticDeps()
	loop := newTestLoop(adaptor, deps, obs, clock.Real{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	loop.Send(Command{Kind: CmdCreate, Spec: &ankaios.Workload{Name: "w", Agent: "agent_A", Runtime: "fake"}})
	obs.waitFor(t, ankaios.Running)

	loop.Send(Command{Kind: CmdDelete})
	obs.waitFor(t, ankaios.Removed)

	require.Eventually(t, func() bool {
		return loop.State() == StateRemoved
	}, time.Second, time.Millisecond)
}
