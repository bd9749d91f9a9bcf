package server

import (
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/log"
	"github.com/ankaios-project/ankaios-core/pkg/metrics"
	"github.com/rs/zerolog"
)

// Reconciler runs the periodic, non-reactive half of reconciliation: a
// defensive liveness sweep over connections whose Connect stream may have
// died without a clean Goodbye, and nothing else, since the rest of
// reconciliation (desired-state diff, state aggregation) happens
// synchronously inside Server as messages arrive.
type Reconciler struct {
	server *Server
	logger zerolog.Logger
	stopCh chan struct{}
}

// NewReconciler creates a Reconciler bound to server.
func NewReconciler(srv *Server) *Reconciler {
	return &Reconciler{
		server: srv,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop terminates the loop. Start must not be called again on the same
// Reconciler afterwards.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")
	for {
		select {
		case <-ticker.C:
			r.reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.sweepDeadConnections()
}

// sweepDeadConnections disconnects every agent whose connection is still
// registered although its done channel is closed. Only OnAgentDisconnect
// closes done, and it removes the connection in the same critical section;
// handleAgentSession defers OnAgentDisconnect on every exit, so in normal
// operation the sweep finds nothing.
func (r *Reconciler) sweepDeadConnections() {
	r.server.connMu.RLock()
	var dead []string
	for name, conn := range r.server.conns {
		select {
		case <-conn.done:
			dead = append(dead, name)
		default:
		}
	}
	r.server.connMu.RUnlock()

	for _, name := range dead {
		r.server.OnAgentDisconnect(name)
	}
}
