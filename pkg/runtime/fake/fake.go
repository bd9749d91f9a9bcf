// Package fake provides an in-memory runtime.Adaptor double, grounded on
// lightweight in-memory test doubles, so control
// loop tests can drive create/delete/retry behavior without a real
// container backend.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
)

// Adaptor is a scriptable in-memory runtime.Adaptor. CreateFailures lets a
// test force the first N calls to CreateWorkload for a given instance to
// fail retriably before succeeding, covering spec scenario 4.
type Adaptor struct {
	mu sync.Mutex

	CreateFailures map[string]int  // instance.String() -> remaining forced failures
	fatalFailures  map[string]bool // instance.String() -> next CreateWorkload call is fatal, not retriable
	created        map[string]*instance
	createCalls    int
}

type instance struct {
	handle  runtime.Handle
	checker *checker
}

// New returns an empty fake Adaptor.
func New() *Adaptor {
	return &Adaptor{
		CreateFailures: map[string]int{},
		fatalFailures:  map[string]bool{},
		created:        map[string]*instance{},
	}
}

// FailNextCreates arranges for the next n CreateWorkload calls for instance
// to fail with a retriable error.
func (a *Adaptor) FailNextCreates(inst ankaios.WorkloadInstanceName, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CreateFailures[inst.String()] = n
}

// FailFatalNextCreate arranges for the next CreateWorkload call for inst to
// fail with a non-retriable error.
func (a *Adaptor) FailFatalNextCreate(inst ankaios.WorkloadInstanceName) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fatalFailures[inst.String()] = true
}

// CreateCalls reports how many times CreateWorkload has actually run,
// letting a test assert that an adopted instance was never recreated.
func (a *Adaptor) CreateCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.createCalls
}

// Adopt registers inst as already running, as GetReusableWorkloads would
// report it, without going through CreateWorkload.
func (a *Adaptor) Adopt(inst ankaios.WorkloadInstanceName) runtime.Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := inst.String()
	handle := runtime.Handle{Instance: inst, ContainerID: key}
	c := newChecker()
	a.created[key] = &instance{handle: handle, checker: c}
	return handle
}

func (a *Adaptor) CreateWorkload(ctx context.Context, inst ankaios.WorkloadInstanceName, w *ankaios.Workload) (runtime.Handle, runtime.StateChecker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := inst.String()
	a.createCalls++
	if a.fatalFailures[key] {
		delete(a.fatalFailures, key)
		return runtime.Handle{}, nil, runtime.Fatal(fmt.Errorf("fake fatal create failure for %s", key))
	}
	if remaining := a.CreateFailures[key]; remaining > 0 {
		a.CreateFailures[key] = remaining - 1
		return runtime.Handle{}, nil, runtime.Retry(fmt.Errorf("fake create failure for %s", key))
	}

	handle := runtime.Handle{Instance: inst, ContainerID: key}
	c := newChecker()
	a.created[key] = &instance{handle: handle, checker: c}
	c.push(ankaios.ExecutionState{State: ankaios.Running})
	return handle, c, nil
}

func (a *Adaptor) DeleteWorkload(ctx context.Context, handle runtime.Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if inst, ok := a.created[handle.ContainerID]; ok {
		inst.checker.Close()
		delete(a.created, handle.ContainerID)
	}
	return nil
}

// WatchWorkload returns the StateChecker double for a handle returned
// earlier by GetReusableWorkloads or CreateWorkload.
func (a *Adaptor) WatchWorkload(ctx context.Context, handle runtime.Handle) (runtime.StateChecker, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inst, ok := a.created[handle.ContainerID]
	if !ok {
		return nil, fmt.Errorf("no such workload %s", handle.ContainerID)
	}
	return inst.checker, nil
}

func (a *Adaptor) GetReusableWorkloads(ctx context.Context, agentName string) ([]runtime.Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var handles []runtime.Handle
	for _, inst := range a.created {
		if inst.handle.Instance.AgentName == agentName {
			handles = append(handles, inst.handle)
		}
	}
	return handles, nil
}

// PushState delivers an additional observation through the StateChecker
// for an already-created instance, letting a test simulate a runtime
// lifecycle transition (e.g. RUNNING -> SUCCEEDED) after creation.
func (a *Adaptor) PushState(inst ankaios.WorkloadInstanceName, state ankaios.ExecutionState) {
	a.mu.Lock()
	c, ok := a.created[inst.String()]
	a.mu.Unlock()
	if ok {
		c.checker.push(state)
	}
}

// checker is a channel-backed runtime.StateChecker double.
type checker struct {
	observations chan ankaios.ExecutionState
	closed       chan struct{}
	once         sync.Once
}

func newChecker() *checker {
	return &checker{
		observations: make(chan ankaios.ExecutionState, 16),
		closed:       make(chan struct{}),
	}
}

func (c *checker) push(state ankaios.ExecutionState) {
	select {
	case c.observations <- state:
	default:
	}
}

func (c *checker) Next(ctx context.Context) (ankaios.ExecutionState, error) {
	select {
	case <-ctx.Done():
		return ankaios.ExecutionState{}, ctx.Err()
	case <-c.closed:
		return ankaios.ExecutionState{}, fmt.Errorf("state checker closed")
	case s := <-c.observations:
		return s, nil
	}
}

func (c *checker) Close() {
	c.once.Do(func() { close(c.closed) })
}
