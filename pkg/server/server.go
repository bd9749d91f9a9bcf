// Package server implements the Server: the single authoritative holder of
// desired state and aggregated actual state. It accepts UpdateStateRequest
// and CompleteStateRequest from clients, computes per-agent deltas, and
// aggregates UpdateWorkloadState reports coming back from connected agents.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/log"
	"github.com/ankaios-project/ankaios-core/pkg/metrics"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/rs/zerolog"
)

// agentConnection is the Server's handle on one connected agent: a send
// channel the Connect stream goroutine drains, and bookkeeping used by the
// Reconciler's disconnect sweep.
type agentConnection struct {
	name   string
	send   chan *ankpb.Envelope
	done   chan struct{}
	closed bool
}

// Server owns the cluster's desired state and aggregated actual state. Apart
// from LoadManifest's one-time startup seed, all mutation of desired state
// goes through UpdateState, which holds mu for the
// duration of validate-diff-commit, a single
// Raft-FSM-apply serialization point, without Raft (the cluster has exactly
// one Server, per the Non-goal on multi-leader replication).
type Server struct {
	mu      sync.RWMutex
	desired *ankaios.DesiredState
	states  ankaios.WorkloadStatesMap
	agents  map[string]*ankaios.ConnectedAgent

	connMu sync.RWMutex
	conns  map[string]*agentConnection

	runtimes map[string]bool
	logger   zerolog.Logger
}

// New creates an empty Server. LoadManifest may be called once before
// Serve to seed the initial desired state.
func New(knownRuntimes []string) *Server {
	runtimes := make(map[string]bool, len(knownRuntimes))
	for _, r := range knownRuntimes {
		runtimes[r] = true
	}
	return &Server{
		desired:  &ankaios.DesiredState{Workloads: map[string]*ankaios.Workload{}},
		states:   ankaios.NewWorkloadStatesMap(),
		agents:   map[string]*ankaios.ConnectedAgent{},
		conns:    map[string]*agentConnection{},
		runtimes: runtimes,
		logger:   log.WithComponent("server"),
	}
}

// CompleteState returns the full, unmasked cluster state. It satisfies
// pkg/metrics.StateSource.
func (s *Server) CompleteState() *ankaios.CompleteState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &ankaios.CompleteState{
		DesiredState:   s.desired.Clone(),
		WorkloadStates: s.states,
		Agents:         cloneAgents(s.agents),
	}
}

// CompleteStateRequest returns the cluster state restricted to fieldMasks.
// An empty mask returns everything.
func (s *Server) CompleteStateRequest(fieldMasks []string) (*ankaios.CompleteState, error) {
	full := s.CompleteState()
	if len(fieldMasks) == 0 {
		return full, nil
	}
	masked := &ankaios.CompleteState{}
	if err := ankaios.ApplyMask(masked, full, fieldMasks); err != nil {
		return nil, fmt.Errorf("apply field mask: %w", err)
	}
	return masked, nil
}

// UpdateState applies a masked update to the desired state and dispatches
// the resulting per-agent deltas to connected agents. It implements the
// algorithm of the Server reconciliation engine: clone, mask-apply,
// validate, diff, commit, dispatch.
func (s *Server) UpdateState(newState *ankaios.CompleteState, updateMask []string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UpdateStateDuration)

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.desired.Clone()
	if len(updateMask) == 0 {
		if newState.DesiredState != nil {
			candidate = newState.DesiredState.Clone()
		}
	} else {
		if err := ankaios.ApplyMask(candidate, newState.DesiredState, updateMask); err != nil {
			return fmt.Errorf("apply update mask: %w", err)
		}
	}

	if err := ValidateDesiredState(candidate, s.runtimes); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	added, deleted := diffByAgent(s.desired, candidate)
	s.desired = candidate
	s.dispatchDeltas(added, deleted)
	return nil
}

// diffByAgent computes, per agent, the set of instances that must be
// created and deleted to move from old to new desired state. A workload
// moving to a different agent appears as a delete on its old agent and an
// add on its new one.
func diffByAgent(old, next *ankaios.DesiredState) (added, deleted map[string][]ankpb.AddedWorkload) {
	added = map[string][]ankpb.AddedWorkload{}
	deleted = map[string][]ankaios.WorkloadInstanceName{}

	oldInstances := map[string]ankaios.WorkloadInstanceName{}
	if old != nil {
		for name, w := range old.Workloads {
			oldInstances[name] = ankaios.InstanceName(name, w)
		}
	}

	for name, w := range next.Workloads {
		newInstance := ankaios.InstanceName(name, w)
		oldInstance, existed := oldInstances[name]
		if existed && oldInstance == newInstance {
			continue
		}
		added[w.Agent] = append(added[w.Agent], ankpb.AddedWorkload{Instance: newInstance, Workload: w.Clone()})
		if existed {
			deleted[oldInstance.AgentName] = append(deleted[oldInstance.AgentName], oldInstance)
		}
	}

	for name, oldInstance := range oldInstances {
		if _, stillDesired := next.Workloads[name]; !stillDesired {
			deleted[oldInstance.AgentName] = append(deleted[oldInstance.AgentName], oldInstance)
		}
	}

	return added, deleted
}

// dispatchDeltas sends one UpdateWorkload envelope per affected agent,
// deletes ordered before adds within the message as required.
func (s *Server) dispatchDeltas(added map[string][]ankpb.AddedWorkload, deleted map[string][]ankaios.WorkloadInstanceName) {
	agentSet := map[string]struct{}{}
	for agent := range added {
		agentSet[agent] = struct{}{}
	}
	for agent := range deleted {
		agentSet[agent] = struct{}{}
	}
	for agent := range agentSet {
		env := &ankpb.Envelope{
			Kind: ankpb.KindUpdateWorkload,
			UpdateWorkload: &ankpb.UpdateWorkload{
				Delta: ankpb.WorkloadDelta{
					Added:   added[agent],
					Deleted: deleted[agent],
				},
			},
		}
		s.send(agent, env)
	}
}

// OnAgentConnect registers a new agent connection and returns its
// ServerHello payload (the agent's full assigned set, computed from the
// current desired state) plus the send channel the Connect stream should
// drain for subsequent pushes.
func (s *Server) OnAgentConnect(agentName string) (*ankpb.ServerHello, *agentConnection) {
	s.mu.Lock()
	s.agents[agentName] = &ankaios.ConnectedAgent{Name: agentName, ConnectedAt: time.Now()}
	var added []ankpb.AddedWorkload
	for name, w := range s.desired.Workloads {
		if w.Agent != agentName {
			continue
		}
		added = append(added, ankpb.AddedWorkload{Instance: ankaios.InstanceName(name, w), Workload: w.Clone()})
	}
	states := cloneWorkloadStates(s.states)
	s.mu.Unlock()

	conn := &agentConnection{name: agentName, send: make(chan *ankpb.Envelope, 64), done: make(chan struct{})}
	s.connMu.Lock()
	s.conns[agentName] = conn
	s.connMu.Unlock()

	metrics.AgentsConnected.Inc()
	s.logger.Info().Str("agent", agentName).Msg("agent connected")

	return &ankpb.ServerHello{
		ProtocolVersion: ankpb.ProtocolVersion,
		Delta:           ankpb.WorkloadDelta{Added: added},
		WorkloadStates:  states,
	}, conn
}

// cloneWorkloadStates returns a deep copy of states, so the ServerHello
// payload built under s.mu does not alias a map that ApplyWorkloadStateDelta
// and OnAgentDisconnect keep mutating after the lock is released.
func cloneWorkloadStates(states ankaios.WorkloadStatesMap) ankaios.WorkloadStatesMap {
	out := ankaios.NewWorkloadStatesMap()
	for agent, byWorkload := range states {
		out[agent] = make(map[string]map[string]ankaios.ExecutionState, len(byWorkload))
		for workload, byHash := range byWorkload {
			out[agent][workload] = make(map[string]ankaios.ExecutionState, len(byHash))
			for hash, state := range byHash {
				out[agent][workload][hash] = state
			}
		}
	}
	return out
}

// OnAgentDisconnect removes the agent's connection and rewrites every
// non-terminal workload state it owned to AGENT_DISCONNECTED, broadcasting
// the delta.
func (s *Server) OnAgentDisconnect(agentName string) {
	s.connMu.Lock()
	if conn, ok := s.conns[agentName]; ok && !conn.closed {
		conn.closed = true
		close(conn.done)
	}
	delete(s.conns, agentName)
	s.connMu.Unlock()

	s.mu.Lock()
	delete(s.agents, agentName)
	now := func() ankaios.ExecutionState {
		return ankaios.ExecutionState{State: ankaios.AgentDisconnected, Timestamp: time.Now()}
	}
	s.states.MarkAgentDisconnected(agentName, now)
	delta := snapshotAgent(s.states, agentName)
	s.mu.Unlock()

	metrics.AgentsConnected.Dec()
	metrics.AgentReconnectsTotal.WithLabelValues("disconnected").Inc()
	s.logger.Warn().Str("agent", agentName).Msg("agent disconnected")

	if len(delta) > 0 {
		s.broadcastStateDelta(delta)
	}
}

// snapshotAgent returns a WorkloadStatesMap delta containing only the
// entries currently recorded for one agent.
func snapshotAgent(states ankaios.WorkloadStatesMap, agentName string) ankaios.WorkloadStatesMap {
	byWorkload, ok := states[agentName]
	if !ok {
		return nil
	}
	out := ankaios.WorkloadStatesMap{agentName: map[string]map[string]ankaios.ExecutionState{}}
	for workload, byHash := range byWorkload {
		out[agentName][workload] = map[string]ankaios.ExecutionState{}
		for hash, state := range byHash {
			out[agentName][workload][hash] = state
		}
	}
	return out
}

// ApplyWorkloadStateDelta merges an inbound UpdateWorkloadState report into
// the aggregated map and broadcasts it onward to every connected agent.
func (s *Server) ApplyWorkloadStateDelta(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState) {
	s.mu.Lock()
	s.states.Set(instance, state)
	s.mu.Unlock()

	s.broadcastStateDelta(ankaios.WorkloadStatesMap{
		instance.AgentName: {instance.WorkloadName: {instance.ConfigHash: state}},
	})
}

// broadcastStateDelta fans a WorkloadStatesMap delta (not the full map) out
// to every connected agent.
func (s *Server) broadcastStateDelta(delta ankaios.WorkloadStatesMap) {
	for agent, byWorkload := range delta {
		for workload, byHash := range byWorkload {
			for hash, state := range byHash {
				instance := ankaios.WorkloadInstanceName{WorkloadName: workload, AgentName: agent, ConfigHash: hash}
				msg := &ankpb.Envelope{
					Kind: ankpb.KindUpdateWorkloadState,
					UpdateWorkloadState: &ankpb.UpdateWorkloadState{
						Instance: instance,
						State:    state,
					},
				}
				s.broadcast(msg)
			}
		}
	}
}

func (s *Server) broadcast(env *ankpb.Envelope) {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	for _, conn := range s.conns {
		select {
		case conn.send <- env:
		case <-conn.done:
		}
	}
}

func (s *Server) send(agentName string, env *ankpb.Envelope) {
	s.connMu.RLock()
	conn, ok := s.conns[agentName]
	s.connMu.RUnlock()
	if !ok {
		return
	}
	select {
	case conn.send <- env:
	case <-conn.done:
	}
}

func cloneAgents(agents map[string]*ankaios.ConnectedAgent) map[string]*ankaios.ConnectedAgent {
	out := make(map[string]*ankaios.ConnectedAgent, len(agents))
	for name, a := range agents {
		cp := *a
		out[name] = &cp
	}
	return out
}
