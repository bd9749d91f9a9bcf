// Package statechecker runs one runtime.StateChecker's observation loop on
// its own goroutine and forwards each ExecutionState onto a channel owned
// by the control loop, in the shape of a health.Checker/Status
// idiom (a backing Check function polled on a dedicated goroutine, results
// delivered to the owner rather than read synchronously).
package statechecker

import (
	"context"
	"sync"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
)

// Runner pumps runtime.StateChecker.Next in a loop until it errors or is
// stopped, delivering each observation to out.
type Runner struct {
	checker runtime.StateChecker
	out     chan<- ankaios.ExecutionState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Start begins forwarding checker's observations to out. The caller owns
// out and must keep reading it until Stop returns.
func Start(checker runtime.StateChecker, out chan<- ankaios.ExecutionState) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{checker: checker, out: out, cancel: cancel}
	r.wg.Add(1)
	go r.run(ctx)
	return r
}

func (r *Runner) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		obs, err := r.checker.Next(ctx)
		if err != nil {
			return
		}
		select {
		case r.out <- obs:
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the observation loop, waits for it to exit, then closes the
// underlying StateChecker — always in that order, so the checker is never
// closed while Next is still in flight.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	r.checker.Close()
}
