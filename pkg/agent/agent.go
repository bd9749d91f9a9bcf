package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/agent/clock"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlapi"
	"github.com/ankaios-project/ankaios-core/pkg/agent/controlloop"
	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/metrics"
	"github.com/ankaios-project/ankaios-core/pkg/runtime"
	"github.com/ankaios-project/ankaios-core/pkg/transport"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config configures an Agent's connection to the Server.
type Config struct {
	AgentName    string
	ServerAddr   string
	Adaptor      runtime.Adaptor
	ClientCert   tls.Certificate
	CACert       *x509.Certificate
	ControlLoop  controlloop.Config
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Logger       zerolog.Logger

	// ControlInterfaceBasePath, if non-empty, enables a Control Interface
	// controller rooted at that path for workloads that request one.
	ControlInterfaceBasePath string
}

// Agent owns one Manager and the reconnect-with-backoff lifecycle of its
// stream to the Server, in the shape of a Worker.Start/connectWithMTLS
// pair, generalized from polling to a push-reactive receive loop.
type Agent struct {
	cfg     Config
	manager *Manager
	logger  zerolog.Logger

	sendChMu sync.RWMutex
	sendCh   chan *ankpb.Envelope // guarded by sendChMu: set by connectOnce's goroutine, read from Forward/sendStateUpdate on any goroutine

	pendingMu sync.Mutex
	pending   map[string]chan *ankpb.Response
}

// NewAgent creates an Agent; call Run to connect and start processing.
func NewAgent(cfg Config) *Agent {
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}

	a := &Agent{cfg: cfg, logger: cfg.Logger, pending: map[string]chan *ankpb.Response{}}

	var ctl *controlapi.Controller
	if cfg.ControlInterfaceBasePath != "" {
		ctl = controlapi.NewController(cfg.ControlInterfaceBasePath, a, cfg.Logger)
	}
	a.manager = New(cfg.AgentName, cfg.Adaptor, cfg.ControlLoop, clock.Real{}, cfg.Logger, a.sendStateUpdate, ctl)
	return a
}

// Forward implements controlapi.Forwarder: it sends req to the Server over
// the open stream and blocks until the matching Response arrives or ctx is
// cancelled.
func (a *Agent) Forward(ctx context.Context, req *ankpb.Request) (*ankpb.Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ch := make(chan *ankpb.Response, 1)
	a.pendingMu.Lock()
	a.pending[req.RequestID] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, req.RequestID)
		a.pendingMu.Unlock()
	}()

	ch2 := a.getSendCh()
	if ch2 == nil {
		return nil, fmt.Errorf("agent not connected")
	}
	select {
	case ch2 <- &ankpb.Envelope{Kind: ankpb.KindRequest, Request: req}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run dials the Server and processes its stream until ctx is cancelled,
// reconnecting with exponential backoff on any transport failure.
func (a *Agent) Run(ctx context.Context) error {
	backoff := transport.NewBackoff(a.cfg.ReconnectMin, a.cfg.ReconnectMax)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := a.connectOnce(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("agent stream ended, reconnecting")
			metrics.AgentReconnectsTotal.WithLabelValues("retry").Inc()
		} else {
			backoff.Reset()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.Next()):
		}
	}
}

func (a *Agent) connectOnce(ctx context.Context) error {
	conn, err := transport.Dial(a.cfg.ServerAddr, a.cfg.ClientCert, a.cfg.CACert)
	if err != nil {
		return fmt.Errorf("dial server: %w", err)
	}
	defer conn.Close()

	stream, err := transport.Connect(ctx, conn)
	if err != nil {
		return fmt.Errorf("open connect stream: %w", err)
	}

	if err := a.manager.AdoptReusableWorkloads(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("adopt reusable workloads failed")
	}

	if err := stream.Send(&ankpb.Envelope{
		Kind: ankpb.KindAgentHello,
		AgentHello: &ankpb.AgentHello{
			AgentName:       a.cfg.AgentName,
			ProtocolVersion: ankpb.ProtocolVersion,
		},
	}); err != nil {
		return fmt.Errorf("send AgentHello: %w", err)
	}

	sendCh := make(chan *ankpb.Envelope, 64)
	a.setSendCh(sendCh)
	defer a.setSendCh(nil)

	go sendLoop(stream, sendCh)

	for {
		env, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch env.Kind {
		case ankpb.KindServerHello:
			if env.ServerHello != nil {
				a.manager.HandleServerHello(ctx, env.ServerHello)
			}
		case ankpb.KindUpdateWorkload:
			if env.UpdateWorkload != nil {
				a.manager.HandleUpdateWorkload(ctx, env.UpdateWorkload)
			}
		case ankpb.KindUpdateWorkloadState:
			if env.UpdateWorkloadState != nil {
				a.manager.HandleUpdateWorkloadState(ctx, env.UpdateWorkloadState)
			}
		case ankpb.KindResponse:
			if env.Response != nil {
				a.deliverResponse(env.Response)
			}
		case ankpb.KindGoodbye:
			reason := ""
			if env.Goodbye != nil {
				reason = env.Goodbye.Reason
			}
			return fmt.Errorf("server sent goodbye: %s", reason)
		}
	}
}

func (a *Agent) deliverResponse(resp *ankpb.Response) {
	a.pendingMu.Lock()
	ch, ok := a.pending[resp.RequestID]
	a.pendingMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func sendLoop(stream ankpb.AgentConnect_ConnectClient, ch <-chan *ankpb.Envelope) {
	for env := range ch {
		if err := stream.Send(env); err != nil {
			return
		}
	}
}

func (a *Agent) getSendCh() chan *ankpb.Envelope {
	a.sendChMu.RLock()
	defer a.sendChMu.RUnlock()
	return a.sendCh
}

func (a *Agent) setSendCh(ch chan *ankpb.Envelope) {
	a.sendChMu.Lock()
	defer a.sendChMu.Unlock()
	a.sendCh = ch
}

func (a *Agent) sendStateUpdate(instance ankaios.WorkloadInstanceName, state ankaios.ExecutionState) {
	ch := a.getSendCh()
	if ch == nil {
		return
	}
	env := &ankpb.Envelope{
		Kind: ankpb.KindUpdateWorkloadState,
		UpdateWorkloadState: &ankpb.UpdateWorkloadState{
			Instance: instance,
			State:    state,
		},
	}
	select {
	case ch <- env:
	default:
	}
}
