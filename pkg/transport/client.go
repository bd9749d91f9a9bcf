package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/transport/ankpb"
	_ "github.com/ankaios-project/ankaios-core/pkg/transport/codec"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens an mTLS connection to the Server at addr, presenting
// clientCert and trusting caCert as the Server's issuer.
func Dial(addr string, clientCert tls.Certificate, caCert *x509.Certificate) (*grpc.ClientConn, error) {
	certPool := x509.NewCertPool()
	certPool.AddCert(caCert)
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      certPool,
		MinVersion:   tls.VersionTLS13,
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// DialInsecure opens a plaintext connection to the Server at addr, for the
// CLI's --insecure/-k escape hatch. Never used for Agent↔Server traffic.
func DialInsecure(addr string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// Connect opens the AgentConnect bidirectional stream on an established
// connection.
func Connect(ctx context.Context, conn *grpc.ClientConn) (ankpb.AgentConnect_ConnectClient, error) {
	client := ankpb.NewAgentConnectClient(conn)
	stream, err := client.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("open connect stream: %w", err)
	}
	return stream, nil
}
