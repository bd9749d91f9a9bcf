package controlapi

import (
	"context"
	"testing"
	"time"

	"github.com/ankaios-project/ankaios-core/pkg/ankaios"
	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeForwarder struct {
	resp *ankpb.Response
	err  error
}

func (f *fakeForwarder) Forward(ctx context.Context, req *ankpb.Request) (*ankpb.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.RequestID = req.RequestID
	return &resp, nil
}

func runSession(t *testing.T, access *ankaios.ControlInterfaceAccess, fwd Forwarder) (*fakePipePair, func()) {
	t.Helper()
	pair := newFakePipePair()
	in, out := pair.agentSide()
	sess := NewSession("app", access, fwd, in, out, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	return pair, func() {
		cancel()
		<-done
	}
}

func TestSessionHandshakeVersionMismatchCloses(t *testing.T) {
	pair := newFakePipePair()
	in, out := pair.agentSide()
	sess := NewSession("app", nil, &fakeForwarder{}, in, out, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(context.Background()) }()

	wIn, wOut := pair.workloadSide()
	require.NoError(t, writeFrame(wOut, ToAnkaios{Hello: &InitialHello{ProtocolVersion: "9.9"}}))

	var reply FromAnkaios
	require.NoError(t, readFrame(wIn, &reply))
	require.NotNil(t, reply.Hello)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not close on version mismatch")
	}
}

func TestSessionAuthorizedRequestForwarded(t *testing.T) {
	access := &ankaios.ControlInterfaceAccess{
		Allow: []ankaios.AccessRule{{Kind: ankaios.AccessRequestCompleteState}},
	}
	fwd := &fakeForwarder{resp: &ankpb.Response{CompleteState: &ankaios.CompleteState{}}}
	pair, stop := runSession(t, access, fwd)
	defer stop()

	wIn, wOut := pair.workloadSide()
	require.NoError(t, writeFrame(wOut, ToAnkaios{Hello: &InitialHello{ProtocolVersion: ControlInterfaceVersion}}))
	var hello FromAnkaios
	require.NoError(t, readFrame(wIn, &hello))

	require.NoError(t, writeFrame(wOut, ToAnkaios{Request: &ankpb.Request{
		RequestID: "r1",
		Kind:      ankpb.RequestKindCompleteState,
		CompleteState: &ankpb.CompleteStateRequest{},
	}}))

	var resp FromAnkaios
	require.NoError(t, readFrame(wIn, &resp))
	require.NotNil(t, resp.Response)
	require.Equal(t, "r1", resp.Response.RequestID)
	require.Empty(t, resp.Response.Error)
}

func TestSessionUnauthorizedRequestDenied(t *testing.T) {
	pair, stop := runSession(t, nil, &fakeForwarder{resp: &ankpb.Response{}})
	defer stop()

	wIn, wOut := pair.workloadSide()
	require.NoError(t, writeFrame(wOut, ToAnkaios{Hello: &InitialHello{ProtocolVersion: ControlInterfaceVersion}}))
	var hello FromAnkaios
	require.NoError(t, readFrame(wIn, &hello))

	require.NoError(t, writeFrame(wOut, ToAnkaios{Request: &ankpb.Request{
		RequestID:     "r2",
		Kind:          ankpb.RequestKindCompleteState,
		CompleteState: &ankpb.CompleteStateRequest{},
	}}))

	var resp FromAnkaios
	require.NoError(t, readFrame(wIn, &resp))
	require.Equal(t, "access denied", resp.Response.Error)
}
