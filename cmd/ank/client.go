package main

import (
	"fmt"

	"github.com/ankaios-project/ankaios-core/pkg/cliclient"
	"github.com/ankaios-project/ankaios-core/pkg/security"
)

func newClient() (*cliclient.Client, error) {
	if insecure {
		return cliclient.NewInsecure(serverAddr), nil
	}

	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, err
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("no CLI certificate found at %s; provision one before connecting, or pass --insecure", certDir)
	}
	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CLI certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("load CA certificate: %w", err)
	}

	return cliclient.New(serverAddr, *cert, caCert), nil
}
