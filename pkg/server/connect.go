package server

import (
	"errors"
	"fmt"
	"io"

	"github.com/ankaios-project/ankaios-core/pkg/transport"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
)

// Connect implements ankpb.AgentConnectServer. The same RPC carries two
// kinds of session depending on the stream's first message: an Agent opens
// with AgentHello and keeps the stream open for its whole lifetime, and
// forwards its workloads' Control Interface requests as Request envelopes
// on that same session; any other client (the CLI) sends Request envelopes
// and gets one Response per request without ever sending AgentHello.
func (s *Server) Connect(stream ankpb.AgentConnect_ConnectServer) error {
	first, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if first.Kind == ankpb.KindAgentHello && first.AgentHello != nil {
		return s.handleAgentSession(stream, first.AgentHello)
	}
	return s.handleClientSession(stream, first)
}

func (s *Server) handleAgentSession(stream ankpb.AgentConnect_ConnectServer, hello *ankpb.AgentHello) error {
	agentName := hello.AgentName
	if name, err := transport.AgentNameFromContext(stream.Context()); err == nil && name != "" {
		agentName = name
	}
	if agentName == "" {
		return fmt.Errorf("agent session: no agent name in AgentHello or client certificate")
	}
	if hello.ProtocolVersion != ankpb.ProtocolVersion {
		_ = stream.Send(&ankpb.Envelope{Kind: ankpb.KindGoodbye, Goodbye: &ankpb.Goodbye{Reason: "protocol version mismatch"}})
		return fmt.Errorf("agent %s: protocol version mismatch (got %s, want %s)", agentName, hello.ProtocolVersion, ankpb.ProtocolVersion)
	}

	serverHello, conn := s.OnAgentConnect(agentName)
	defer s.OnAgentDisconnect(agentName)

	if err := stream.Send(&ankpb.Envelope{Kind: ankpb.KindServerHello, ServerHello: serverHello}); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			select {
			case env, ok := <-conn.send:
				if !ok {
					return
				}
				if err := stream.Send(env); err != nil {
					errCh <- err
					return
				}
			case <-conn.done:
				return
			}
		}
	}()

	for {
		env, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch env.Kind {
		case ankpb.KindUpdateWorkloadState:
			if env.UpdateWorkloadState != nil {
				s.ApplyWorkloadStateDelta(env.UpdateWorkloadState.Instance, env.UpdateWorkloadState.State)
			}
		case ankpb.KindRequest:
			if env.Request != nil {
				resp := s.handleRequest(env.Request)
				if err := stream.Send(&ankpb.Envelope{Kind: ankpb.KindResponse, Response: resp}); err != nil {
					return err
				}
			}
		case ankpb.KindGoodbye:
			return nil
		}

		select {
		case err := <-errCh:
			return err
		default:
		}
	}
}

// handleClientSession serves a short-lived client (the CLI) that never
// sends AgentHello: every inbound Envelope is
// expected to carry a Request, answered with exactly one Response.
func (s *Server) handleClientSession(stream ankpb.AgentConnect_ConnectServer, first *ankpb.Envelope) error {
	env := first
	for {
		if env.Kind == ankpb.KindRequest && env.Request != nil {
			resp := s.handleRequest(env.Request)
			if err := stream.Send(&ankpb.Envelope{Kind: ankpb.KindResponse, Response: resp}); err != nil {
				return err
			}
		}

		next, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if next.Kind == ankpb.KindGoodbye {
			return nil
		}
		env = next
	}
}

func (s *Server) handleRequest(req *ankpb.Request) *ankpb.Response {
	switch req.Kind {
	case ankpb.RequestKindUpdateState:
		if req.UpdateState == nil {
			return &ankpb.Response{RequestID: req.RequestID, Error: "missing updateState payload"}
		}
		if err := s.UpdateState(&req.UpdateState.State, req.UpdateState.UpdateMask); err != nil {
			return &ankpb.Response{RequestID: req.RequestID, Error: err.Error()}
		}
		return &ankpb.Response{RequestID: req.RequestID, CompleteState: s.CompleteState()}
	case ankpb.RequestKindCompleteState:
		var masks []string
		if req.CompleteState != nil {
			masks = req.CompleteState.FieldMasks
		}
		state, err := s.CompleteStateRequest(masks)
		if err != nil {
			return &ankpb.Response{RequestID: req.RequestID, Error: err.Error()}
		}
		return &ankpb.Response{RequestID: req.RequestID, CompleteState: state}
	default:
		return &ankpb.Response{RequestID: req.RequestID, Error: fmt.Sprintf("unknown request kind %q", req.Kind)}
	}
}
