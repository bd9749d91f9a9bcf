package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/agent/clock"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlloop"
	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	fakeruntime "github.com/ankaios-project/ankaios-core/pkg/runtime/fake"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []ankaios.ExecutionState
}

func (r *recorder) record(_ ankaios.WorkloadInstanceName, s ankaios.ExecutionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, s)
}

func (r *recorder) snapshot() []ankaios.ExecutionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ankaios.ExecutionState(nil), r.seen...)
}

func newTestManager(rec *recorder) *Manager {
	return New("agent_A", fakeruntime.New(), controlloop.DefaultConfig(), clock.Real{}, zerolog.Nop(), rec.record, nil)
}

func waitForState(t *testing.T, rec *recorder, kind ankaios.ExecutionStateKind) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range rec.snapshot() {
			if s.State == kind {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
}

func TestHandleServerHelloCreatesWorkload(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	w := &ankaios.Workload{Name: "nginx", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("nginx", w)

	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})

	waitForState(t, rec, ankaios.Running)
}

func TestHandleUpdateWorkloadDeleteRemovesLoop(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	w := &ankaios.Workload{Name: "nginx", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("nginx", w)
	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})
	waitForState(t, rec, ankaios.Running)

	m.HandleUpdateWorkload(context.Background(), &ankpb.UpdateWorkload{
		Delta: ankpb.WorkloadDelta{Deleted: []ankaios.WorkloadInstanceName{instance}},
	})
	waitForState(t, rec, ankaios.Removed)
}

func TestResumptionWithSameHashIsNoop(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	w := &ankaios.Workload{Name: "nginx", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("nginx", w)
	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})
	waitForState(t, rec, ankaios.Running)
	before := len(rec.snapshot())

	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, m.loops, 1)
	assert.GreaterOrEqual(t, len(rec.snapshot()), before)
}

func TestDeletedLoopIsReapedAllowingRecreate(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	w := &ankaios.Workload{Name: "nginx", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("nginx", w)
	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})
	waitForState(t, rec, ankaios.Running)

	m.HandleUpdateWorkload(context.Background(), &ankpb.UpdateWorkload{
		Delta: ankpb.WorkloadDelta{Deleted: []ankaios.WorkloadInstanceName{instance}},
	})
	waitForState(t, rec, ankaios.Removed)

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		_, ok := m.loops["nginx"]
		return !ok
	}, time.Second, time.Millisecond)

	before := len(rec.snapshot())
	m.HandleUpdateWorkload(context.Background(), &ankpb.UpdateWorkload{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})
	require.Eventually(t, func() bool {
		for _, s := range rec.snapshot()[before:] {
			if s.State == ankaios.Running {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestAdoptsReusableWorkloadInsteadOfRecreating(t *testing.T) {
	rec := &recorder{}
	adaptor := fakeruntime.New()
	m := New("agent_A", adaptor, controlloop.DefaultConfig(), clock.Real{}, zerolog.Nop(), rec.record, nil)

	w := &ankaios.Workload{Name: "nginx", Agent: "agent_A", Runtime: "fake"}
	instance := ankaios.InstanceName("nginx", w)
	adaptor.Adopt(instance)

	require.NoError(t, m.AdoptReusableWorkloads(context.Background()))

	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: instance, Workload: w}}},
	})

	waitForState(t, rec, ankaios.Running)
	assert.Equal(t, 0, adaptor.CreateCalls())
}

func TestServerHelloSeedsClusterWideDependencyState(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	app := &ankaios.Workload{Name: "app", Agent: "agent_A", Runtime: "fake",
		Dependencies: map[string]ankaios.DependencyCondition{"db": ankaios.DependencyRunning}}
	appInstance := ankaios.InstanceName("app", app)

	db := &ankaios.Workload{Name: "db", Agent: "agent_B", Runtime: "fake"}
	dbInstance := ankaios.InstanceName("db", db)

	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: appInstance, Workload: app}}},
		WorkloadStates: ankaios.WorkloadStatesMap{
			dbInstance.AgentName: {dbInstance.WorkloadName: {dbInstance.ConfigHash: ankaios.ExecutionState{State: ankaios.Running}}},
		},
	})

	waitForState(t, rec, ankaios.Running)
}

func TestUpdateWorkloadStateFromOtherAgentWakesWaitingLoop(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	app := &ankaios.Workload{Name: "app", Agent: "agent_A", Runtime: "fake",
		Dependencies: map[string]ankaios.DependencyCondition{"db": ankaios.DependencyRunning}}
	appInstance := ankaios.InstanceName("app", app)
	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: appInstance, Workload: app}}},
	})
	waitForState(t, rec, ankaios.Pending)

	db := &ankaios.Workload{Name: "db", Agent: "agent_B", Runtime: "fake"}
	dbInstance := ankaios.InstanceName("db", db)
	m.HandleUpdateWorkloadState(context.Background(), &ankpb.UpdateWorkloadState{
		Instance: dbInstance,
		State:    ankaios.ExecutionState{State: ankaios.Running},
	})

	waitForState(t, rec, ankaios.Running)
}

func TestDependencyWakesOnDependencyState(t *testing.T) {
	rec := &recorder{}
	m := newTestManager(rec)

	app := &ankaios.Workload{Name: "app", Agent: "agent_A", Runtime: "fake",
		Dependencies: map[string]ankaios.DependencyCondition{"db": ankaios.DependencyRunning}}
	appInstance := ankaios.InstanceName("app", app)

	m.HandleServerHello(context.Background(), &ankpb.ServerHello{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: appInstance, Workload: app}}},
	})
	waitForState(t, rec, ankaios.Pending)

	db := &ankaios.Workload{Name: "db", Agent: "agent_A", Runtime: "fake"}
	dbInstance := ankaios.InstanceName("db", db)
	m.HandleUpdateWorkload(context.Background(), &ankpb.UpdateWorkload{
		Delta: ankpb.WorkloadDelta{Added: []ankpb.AddedWorkload{{Instance: dbInstance, Workload: db}}},
	})

	waitForState(t, rec, ankaios.Running)
}
