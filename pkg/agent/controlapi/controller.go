package controlapi

import (
	"context"
	"sync"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/rs/zerolog"
)

// Controller owns one Session per workload that requested a Control
// Interface, mirroring a per-resource driver
// map: a single mutex-guarded table keyed by the resource's owning name.
type Controller struct {
	basePath string
	fwd      Forwarder
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*runningSession
}

type runningSession struct {
	pd     *PipeDir
	cancel context.CancelFunc
}

// NewController creates a Controller rooted at basePath. Requests read off
// any session it opens are forwarded through fwd.
func NewController(basePath string, fwd Forwarder, logger zerolog.Logger) *Controller {
	return &Controller{
		basePath: basePath,
		fwd:      fwd,
		logger:   logger,
		sessions: map[string]*runningSession{},
	}
}

// Start creates the named-pipe pair for workloadName and begins proxying
// it in the background. Opening the pipes blocks until the workload
// process connects, so this never blocks the caller.
func (c *Controller) Start(workloadName string, access *ankaios.ControlInterfaceAccess) error {
	pd, err := CreatePipeDir(c.basePath, workloadName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.sessions[workloadName] = &runningSession{pd: pd, cancel: cancel}
	c.mu.Unlock()

	go c.run(ctx, workloadName, pd, access)
	return nil
}

func (c *Controller) run(ctx context.Context, workloadName string, pd *PipeDir, access *ankaios.ControlInterfaceAccess) {
	in, out, err := OpenPipes(pd)
	if err != nil {
		c.logger.Warn().Err(err).Str("workload", workloadName).Msg("open control interface pipes failed")
		return
	}

	sess := NewSession(workloadName, access, c.fwd, in, out, c.logger)
	if err := sess.Run(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn().Err(err).Str("workload", workloadName).Msg("control interface session ended")
	}
}

// Stop cancels workloadName's session, if any, and removes its pipe
// directory.
func (c *Controller) Stop(workloadName string) {
	c.mu.Lock()
	r, ok := c.sessions[workloadName]
	if ok {
		delete(c.sessions, workloadName)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	r.cancel()
	r.pd.Remove()
}

// StopAll tears down every active session, e.g. on Agent shutdown.
func (c *Controller) StopAll() {
	c.mu.Lock()
	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	c.mu.Unlock()

	for _, name := range names {
		c.Stop(name)
	}
}
