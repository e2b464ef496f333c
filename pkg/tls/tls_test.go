package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndLoad(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	require.NoError(t, GenerateSelfSignedCert(certFile, keyFile, "status.local", "10.0.0.5", "status.example.org"))

	cfg, err := LoadServerConfig(certFile, keyFile)
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	data, err := os.ReadFile(certFile)
	require.NoError(t, err)
	block, _ := pem.Decode(data)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "status.local", cert.Subject.CommonName)
	assert.Contains(t, cert.DNSNames, "status.example.org")
	assert.Contains(t, cert.DNSNames, "localhost")

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadServerConfigMissingFiles(t *testing.T) {
	_, err := LoadServerConfig("/nonexistent.crt", "/nonexistent.key")
	assert.Error(t, err)
}
