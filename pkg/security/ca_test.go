package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertAuthorityIssueAgentCertificateVerifies(t *testing.T) {
	ca := NewCertAuthority()
	require.NoError(t, ca.Initialize())
	assert.True(t, ca.IsInitialized())

	cert, err := ca.IssueAgentCertificate("agent_A", []string{"localhost"}, nil)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)

	assert.NoError(t, ca.VerifyCertificate(cert.Leaf))
	assert.Equal(t, "agent_A", cert.Leaf.Subject.CommonName)
}

func TestCertAuthorityRejectsBeforeInitialize(t *testing.T) {
	ca := NewCertAuthority()

	_, err := ca.IssueAgentCertificate("agent_A", nil, nil)

	assert.Error(t, err)
}

func TestCertAuthorityCachesIssuedCertificates(t *testing.T) {
	ca := NewCertAuthority()
	require.NoError(t, ca.Initialize())

	_, err := ca.IssueClientCertificate("cli-1")
	require.NoError(t, err)

	_, ok := ca.GetCachedCert("cli-1")
	assert.True(t, ok)
}
