/*
Package security provides the mutual-TLS certificate authority and
cert-file helpers used to secure the Connect stream between Server and
Agent and the Control Interface's CLI access.

CertAuthority is a process-local CA: it is generated fresh on Server
startup (no persistence across restarts, matching the rest of the
server's state model) and used to issue short-lived certificates for each
connecting Agent and for CLI invocations. The CommonName on an
agent-issued certificate is the agent name the Server trusts for that
connection, so authentication and identity assignment happen in the same
step.

GetCertDir/SaveCertToFile/LoadCertFromFile are plain file-system helpers
for caching issued certificates between a process's own restarts; they
know nothing about the CA that produced the certs they manage.
*/
package security
