package security

import (
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSelfSigned(t *testing.T) {
	now := time.Now()
	cert, err := GenerateSelfSigned([]string{"localhost", "127.0.0.1", ""}, now)
	require.NoError(t, err)

	leaf := cert.Leaf
	assert.Equal(t, "cleandoc-api", leaf.Subject.CommonName)
	assert.Equal(t, []string{"localhost"}, leaf.DNSNames)
	require.Len(t, leaf.IPAddresses, 1)
	assert.True(t, leaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
	assert.WithinDuration(t, now.Add(90*24*time.Hour), leaf.NotAfter, time.Second)
	assert.NoError(t, leaf.VerifyHostname("localhost"))
	assert.False(t, CertNeedsRotation(leaf))
}

// TestLoadOrCreateServerCert tests that a valid certificate is reused and
// an expiring one replaced
func TestLoadOrCreateServerCert(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateServerCert(dir, []string{"localhost"})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "server.crt"))

	info, err := os.Stat(filepath.Join(dir, "server.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := LoadOrCreateServerCert(dir, []string{"localhost"})
	require.NoError(t, err)
	assert.Equal(t, first.Leaf.SerialNumber, again.Leaf.SerialNumber, "reused")

	// a certificate issued 80 days ago has 10 days left
	old, err := GenerateSelfSigned([]string{"localhost"}, time.Now().Add(-80*24*time.Hour))
	require.NoError(t, err)
	require.True(t, CertNeedsRotation(old.Leaf))
	require.NoError(t, SaveCertToFile(old, filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key")))

	rotated, err := LoadOrCreateServerCert(dir, []string{"localhost"})
	require.NoError(t, err)
	assert.NotEqual(t, old.Leaf.SerialNumber, rotated.Leaf.SerialNumber)
	assert.False(t, CertNeedsRotation(rotated.Leaf))
}

func TestLoadCertFromFileCorrupt(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certPath, []byte("not pem"), 0600))
	require.NoError(t, os.WriteFile(keyPath, []byte("not pem"), 0600))

	_, err := LoadCertFromFile(certPath, keyPath)
	assert.Error(t, err)

	_, err = LoadOrCreateServerCert(dir, nil)
	assert.Error(t, err, "corrupt files are not silently replaced")
}

func TestCertNeedsRotationNil(t *testing.T) {
	assert.True(t, CertNeedsRotation(nil))
	assert.Zero(t, GetCertTimeRemaining(nil))
}

func TestServerTLSConfig(t *testing.T) {
	cert, err := GenerateSelfSigned([]string{"localhost"}, time.Now())
	require.NoError(t, err)

	cfg := ServerTLSConfig(cert)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Len(t, cfg.Certificates, 1)
}
