package controlapi

import (
	"context"
	"fmt"
	"io"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/rs/zerolog"
)

// Forwarder proxies an authorized Request to the Server and waits for its
// matching Response, implemented by the Agent over its Connect stream.
type Forwarder interface {
	Forward(ctx context.Context, req *ankpb.Request) (*ankpb.Response, error)
}

// Session proxies one workload's Control Interface: it reads ToAnkaios
// frames off the inbound pipe, authorizes each Request against access,
// forwards allowed ones through fwd, and writes the Response back as a
// FromAnkaios frame on the outbound pipe. Unauthorized requests never
// reach the Server.
type Session struct {
	workloadName string
	access       *ankaios.ControlInterfaceAccess
	fwd          Forwarder
	logger       zerolog.Logger

	in  io.ReadCloser
	out io.WriteCloser
}

// NewSession wraps already-open pipe endpoints. in is read for ToAnkaios
// frames sent by the workload; out receives FromAnkaios frames sent back.
func NewSession(workloadName string, access *ankaios.ControlInterfaceAccess, fwd Forwarder, in io.ReadCloser, out io.WriteCloser, logger zerolog.Logger) *Session {
	return &Session{
		workloadName: workloadName,
		access:       access,
		fwd:          fwd,
		logger:       logger,
		in:           in,
		out:          out,
	}
}

// Run negotiates the initial hello then proxies requests until ctx is
// cancelled or the inbound pipe closes.
func (s *Session) Run(ctx context.Context) error {
	defer s.in.Close()
	defer s.out.Close()

	// Closing the inbound pipe on cancellation unblocks a pending readFrame.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.in.Close()
		case <-stop:
		}
	}()

	if err := s.handshake(); err != nil {
		return err
	}

	for {
		var frame ToAnkaios
		if err := readFrame(s.in, &frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read control interface frame: %w", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if frame.Request == nil {
			continue
		}

		s.handleRequest(ctx, frame.Request)
	}
}

func (s *Session) handshake() error {
	var hello ToAnkaios
	if err := readFrame(s.in, &hello); err != nil {
		return fmt.Errorf("read initial hello: %w", err)
	}
	if hello.Hello == nil || hello.Hello.ProtocolVersion != ControlInterfaceVersion {
		writeFrame(s.out, FromAnkaios{Hello: &InitialHello{ProtocolVersion: ControlInterfaceVersion}})
		return fmt.Errorf("protocol version mismatch")
	}
	return writeFrame(s.out, FromAnkaios{Hello: &InitialHello{ProtocolVersion: ControlInterfaceVersion}})
}

func (s *Session) handleRequest(ctx context.Context, req *ankpb.Request) {
	if !authorize(s.access, req) {
		s.logger.Warn().Str("workload", s.workloadName).Str("requestId", req.RequestID).Msg("control interface request denied")
		s.reply(&ankpb.Response{RequestID: req.RequestID, Error: "access denied"})
		return
	}

	resp, err := s.fwd.Forward(ctx, req)
	if err != nil {
		s.reply(&ankpb.Response{RequestID: req.RequestID, Error: err.Error()})
		return
	}
	s.reply(resp)
}

func (s *Session) reply(resp *ankpb.Response) {
	if err := writeFrame(s.out, FromAnkaios{Response: resp}); err != nil {
		s.logger.Warn().Err(err).Str("workload", s.workloadName).Msg("write control interface response failed")
	}
}
