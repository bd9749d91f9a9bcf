package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"sync"
	"time"
)

// CertAuthority is an in-memory certificate authority used to bootstrap
// mTLS between a Server, its Agents and the CLI in local/dev deployments.
// It holds no disk-backed state: a fresh root is generated every process
// start, matching the rest of the Server's no-persistence-across-restarts
// design.
type CertAuthority struct {
	rootCert  *x509.Certificate
	rootKey   *rsa.PrivateKey
	certCache map[string]*CachedCert
	mu        sync.RWMutex
}

// CachedCert is a previously issued certificate kept around for reuse
// within this process lifetime.
type CachedCert struct {
	Cert      *x509.Certificate
	Key       *rsa.PrivateKey
	IssuedAt  time.Time
	ExpiresAt time.Time
}

const (
	rootCAValidity   = 10 * 365 * 24 * time.Hour
	nodeCertValidity = 90 * 24 * time.Hour
	rootKeySize      = 4096
	nodeKeySize      = 2048
)

// NewCertAuthority creates an uninitialized certificate authority.
func NewCertAuthority() *CertAuthority {
	return &CertAuthority{
		certCache: make(map[string]*CachedCert),
	}
}

// Initialize generates a new root CA certificate.
func (ca *CertAuthority) Initialize() error {
	ca.mu.Lock()
	defer ca.mu.Unlock()

	rootKey, err := rsa.GenerateKey(rand.Reader, rootKeySize)
	if err != nil {
		return fmt.Errorf("generate root key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Ankaios Cluster"},
			CommonName:   "Ankaios Root CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(rootCAValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:                  true,
		BasicConstraintsValid: true,
		MaxPathLen:            1,
		MaxPathLenZero:        false,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		return fmt.Errorf("create root certificate: %w", err)
	}

	rootCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse root certificate: %w", err)
	}

	ca.rootCert = rootCert
	ca.rootKey = rootKey
	return nil
}

// IssueAgentCertificate issues a client+server certificate for an agent,
// whose CommonName the Server uses to authenticate the agent's identity on
// every Connect stream.
func (ca *CertAuthority) IssueAgentCertificate(agentName string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	return ca.issue(agentName, dnsNames, ipAddresses)
}

// IssueServerCertificate issues the Server's own listening certificate.
func (ca *CertAuthority) IssueServerCertificate(dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	return ca.issue("server", dnsNames, ipAddresses)
}

// IssueClientCertificate issues a certificate for a cmd/ank CLI invocation.
func (ca *CertAuthority) IssueClientCertificate(clientID string) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	clientKey, err := rsa.GenerateKey(rand.Reader, nodeKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Ankaios Cluster"},
			CommonName:   fmt.Sprintf("cli-%s", clientID),
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(nodeCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &clientKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("create client certificate: %w", err)
	}

	clientCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse client certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  clientKey,
		Leaf:        clientCert,
	}
	ca.cacheCertificate(clientID, clientCert, clientKey)
	return tlsCert, nil
}

func (ca *CertAuthority) issue(commonName string, dnsNames []string, ipAddresses []net.IP) (*tls.Certificate, error) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil || ca.rootKey == nil {
		return nil, fmt.Errorf("CA not initialized")
	}

	nodeKey, err := rsa.GenerateKey(rand.Reader, nodeKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate node key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Ankaios Cluster"},
			CommonName:   commonName,
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().Add(nodeCertValidity),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		DNSNames:    dnsNames,
		IPAddresses: ipAddresses,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, ca.rootCert, &nodeKey.PublicKey, ca.rootKey)
	if err != nil {
		return nil, fmt.Errorf("create node certificate: %w", err)
	}

	nodeCert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("parse node certificate: %w", err)
	}

	tlsCert := &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  nodeKey,
		Leaf:        nodeCert,
	}
	ca.cacheCertificate(commonName, nodeCert, nodeKey)
	return tlsCert, nil
}

// VerifyCertificate verifies a certificate against the root CA.
func (ca *CertAuthority) VerifyCertificate(cert *x509.Certificate) error {
	ca.mu.RLock()
	defer ca.mu.RUnlock()

	if ca.rootCert == nil {
		return fmt.Errorf("CA not initialized")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca.rootCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// GetRootCACert returns the root CA certificate in DER format.
func (ca *CertAuthority) GetRootCACert() []byte {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	if ca.rootCert == nil {
		return nil
	}
	return ca.rootCert.Raw
}

// IsInitialized returns true once Initialize has succeeded.
func (ca *CertAuthority) IsInitialized() bool {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	return ca.rootCert != nil && ca.rootKey != nil
}

func (ca *CertAuthority) cacheCertificate(id string, cert *x509.Certificate, key *rsa.PrivateKey) {
	ca.certCache[id] = &CachedCert{
		Cert:      cert,
		Key:       key,
		IssuedAt:  cert.NotBefore,
		ExpiresAt: cert.NotAfter,
	}
}

// GetCachedCert retrieves a previously issued certificate by id.
func (ca *CertAuthority) GetCachedCert(id string) (*CachedCert, bool) {
	ca.mu.RLock()
	defer ca.mu.RUnlock()
	cert, exists := ca.certCache[id]
	return cert, exists
}
