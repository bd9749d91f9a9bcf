package metrics

import (
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
)

// StateSource is the minimal read-only view of the server the Collector
// needs; pkg/server.Server satisfies it without metrics importing server
// and risking an import cycle.
type StateSource interface {
	CompleteState() *ankaios.CompleteState
}

// Collector periodically samples a StateSource and publishes the result as
// Prometheus gauges.
type Collector struct {
	source StateSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over source.
func NewCollector(source StateSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	state := c.source.CompleteState()
	if state == nil {
		return
	}
	c.collectAgentMetrics(state)
	c.collectWorkloadMetrics(state)
}

func (c *Collector) collectAgentMetrics(state *ankaios.CompleteState) {
	AgentsConnected.Set(float64(len(state.Agents)))
	if state.DesiredState != nil {
		WorkloadsDesiredTotal.Set(float64(len(state.DesiredState.Workloads)))
	}
}

func (c *Collector) collectWorkloadMetrics(state *ankaios.CompleteState) {
	counts := map[ankaios.ExecutionStateKind]int{}
	for _, byWorkload := range state.WorkloadStates {
		for _, byHash := range byWorkload {
			for _, execState := range byHash {
				counts[execState.State]++
			}
		}
	}
	for execState, count := range counts {
		WorkloadInstancesTotal.WithLabelValues(string(execState)).Set(float64(count))
	}
}
