// Package cliclient is the thin wire client the CLI uses to talk to the
// Server: one short-lived Connect stream per request, grounded on the
// teacher's pkg/client.Client (dial once, call a typed method per RPC) but
// generalized since there is no generated per-operation RPC here — every
// call rides the same Request/Response envelope the Agent proxy also uses.
package cliclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/transport"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// DefaultTimeout bounds a single request/response round trip.
const DefaultTimeout = 10 * time.Second

// Client dials the Server fresh for each request, matching the Server's
// dual-mode Connect RPC: a stream that never sends AgentHello is treated as
// a one-shot client request.
type Client struct {
	addr       string
	clientCert tls.Certificate
	caCert     *x509.Certificate
	insecure   bool
}

// New creates a Client that authenticates with mTLS.
func New(addr string, clientCert tls.Certificate, caCert *x509.Certificate) *Client {
	return &Client{addr: addr, clientCert: clientCert, caCert: caCert}
}

// NewInsecure creates a Client that dials without TLS, for the CLI's
// --insecure/-k flag (or ANK_INSECURE=true).
func NewInsecure(addr string) *Client {
	return &Client{addr: addr, insecure: true}
}

func (c *Client) dial() (*grpc.ClientConn, error) {
	if c.insecure {
		return transport.DialInsecure(c.addr)
	}
	return transport.Dial(c.addr, c.clientCert, c.caCert)
}

// do sends req as the only message on a fresh stream and returns the
// Server's matching Response.
func (c *Client) do(ctx context.Context, req *ankpb.Request) (*ankpb.Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stream, err := transport.Connect(ctx, conn)
	if err != nil {
		return nil, err
	}

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if err := stream.Send(&ankpb.Envelope{Kind: ankpb.KindRequest, Request: req}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	env, err := stream.Recv()
	if err != nil {
		return nil, fmt.Errorf("receive response: %w", err)
	}
	if env.Response == nil {
		return nil, fmt.Errorf("server sent no response")
	}
	return env.Response, nil
}

// GetState issues a CompleteStateRequest masked by fieldMasks (nil or empty
// means everything).
func (c *Client) GetState(ctx context.Context, fieldMasks []string) (*ankaios.CompleteState, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	resp, err := c.do(ctx, &ankpb.Request{
		Kind:          ankpb.RequestKindCompleteState,
		CompleteState: &ankpb.CompleteStateRequest{FieldMasks: fieldMasks},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.CompleteState, nil
}

// SetState issues an UpdateStateRequest applying state masked by
// updateMask.
func (c *Client) SetState(ctx context.Context, state ankaios.CompleteState, updateMask []string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	resp, err := c.do(ctx, &ankpb.Request{
		Kind:        ankpb.RequestKindUpdateState,
		UpdateState: &ankpb.UpdateStateRequest{State: state, UpdateMask: updateMask},
	})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}
