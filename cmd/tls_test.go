package main

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userdash/pkg/config"
)

func TestTLSSettingsFromConfig(t *testing.T) {
	s := tlsSettingsFromConfig(&config.Server{
		AppEnv:        "production",
		EnableTLS:     true,
		TLSCertPath:   "/certs/cert.pem",
		TLSKeyPath:    "/certs/key.pem",
		TLSCertPEM:    "cert",
		TLSKeyPEM:     "key",
		TLSSelfSigned: true,
	})
	assert.Equal(t, TLSSettings{
		EnableTLS:       true,
		CertPath:        "/certs/cert.pem",
		KeyPath:         "/certs/key.pem",
		CertPEM:         "cert",
		KeyPEM:          "key",
		Production:      true,
		AllowSelfSigned: true,
	}, s)
}

// writePEM stores cert as PEM files in dir and returns their paths and contents.
func writePEM(t *testing.T, dir string, cert tls.Certificate) (certPath, keyPath string, certPEM, keyPEM []byte) {
	t.Helper()
	keyDER, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certPath, certPEM, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyPEM, 0o600))
	return certPath, keyPath, certPEM, keyPEM
}

func TestBuildTLSConfig_SelfSignedInDevelopment(t *testing.T) {
	cert, err := buildTLSConfig(TLSSettings{EnableTLS: true, AllowSelfSigned: true})
	require.NoError(t, err)
	require.Len(t, cert.Config.Certificates, 1)
	assert.Equal(t, certFromSelfSigned, cert.Source)
	assert.Empty(t, cert.CertFile)
	assert.Empty(t, cert.KeyFile)
	assert.Equal(t, uint16(tls.VersionTLS12), cert.Config.MinVersion)
}

func TestBuildTLSConfig_NoSelfSignedInProduction(t *testing.T) {
	_, err := buildTLSConfig(TLSSettings{EnableTLS: true, Production: true, AllowSelfSigned: true})
	require.ErrorIs(t, err, errNoCertificate)

	_, err = buildTLSConfig(TLSSettings{EnableTLS: true})
	require.ErrorIs(t, err, errNoCertificate, "self-signed disabled")
}

func TestBuildTLSConfig_FromFiles(t *testing.T) {
	generated, err := generateSelfSignedCert(time.Now())
	require.NoError(t, err)
	dir := t.TempDir()
	certPath, keyPath, _, _ := writePEM(t, dir, generated)

	cert, err := buildTLSConfig(TLSSettings{EnableTLS: true, CertPath: certPath, KeyPath: keyPath, Production: true})
	require.NoError(t, err)
	assert.Len(t, cert.Config.Certificates, 1)
	assert.Equal(t, certFromFiles, cert.Source)
	assert.Equal(t, certPath, cert.CertFile)
	assert.Equal(t, keyPath, cert.KeyFile)

	_, err = buildTLSConfig(TLSSettings{CertPath: filepath.Join(dir, "missing.pem"), KeyPath: keyPath})
	require.Error(t, err)
}

func TestBuildTLSConfig_FromEnvPEM(t *testing.T) {
	generated, err := generateSelfSignedCert(time.Now())
	require.NoError(t, err)
	_, _, certPEM, keyPEM := writePEM(t, t.TempDir(), generated)

	cert, err := buildTLSConfig(TLSSettings{EnableTLS: true, CertPEM: string(certPEM), KeyPEM: string(keyPEM), Production: true})
	require.NoError(t, err)
	assert.Equal(t, certFromEnv, cert.Source)
	assert.Empty(t, cert.CertFile)

	_, err = buildTLSConfig(TLSSettings{CertPEM: "garbage", KeyPEM: "garbage"})
	require.ErrorContains(t, err, "TLS_CERT/TLS_KEY")
}

func TestGenerateSelfSignedCert(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert, err := generateSelfSignedCert(now)
	require.NoError(t, err)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "localhost", leaf.Subject.CommonName)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.Len(t, leaf.IPAddresses, 2)
	assert.WithinDuration(t, now.Add(-time.Hour), leaf.NotBefore, time.Second)
	assert.WithinDuration(t, now.Add(devCertLifetime), leaf.NotAfter, time.Second)
	_, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
	assert.True(t, ok)
}
