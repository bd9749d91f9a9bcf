// Package transport implements the mTLS-secured gRPC channel the Server
// listens on and every Agent dials, carrying the AgentConnect bidirectional
// stream defined in pkg/transport/ankpb.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	_ "github.com/ankaios-project/ankaios-core/pkg/transport/codec"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// Listener wraps a grpc.Server bound to one ankpb.AgentConnectServer
// implementation.
type Listener struct {
	grpcServer *grpc.Server
}

// NewListener creates a Listener that requires and verifies client
// certificates against caCert, presenting serverCert to connecting agents.
func NewListener(srv ankpb.AgentConnectServer, serverCert tls.Certificate, caCert *x509.Certificate) *Listener {
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)
	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    certPool,
		MinVersion:   tls.VersionTLS13,
	}
	grpcServer := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	ankpb.RegisterAgentConnectServer(grpcServer, srv)
	return &Listener{grpcServer: grpcServer}
}

// Serve blocks accepting connections on addr until Stop is called.
func (l *Listener) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return l.grpcServer.Serve(lis)
}

// Stop gracefully drains in-flight streams before returning.
func (l *Listener) Stop() {
	l.grpcServer.GracefulStop()
}

// AgentNameFromContext extracts the CommonName of the verified client
// certificate from a stream's context. The Server trusts this as the
// connecting agent's name without a separate login step.
func AgentNameFromContext(ctx context.Context) (string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", fmt.Errorf("no peer information in stream context")
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", fmt.Errorf("connection is not authenticated via TLS")
	}
	if len(tlsInfo.State.PeerCertificates) == 0 {
		return "", fmt.Errorf("no client certificate presented")
	}
	return tlsInfo.State.PeerCertificates[0].Subject.CommonName, nil
}
