package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"userdash/pkg/config"
)

const (
	certFromFiles      = "files"
	certFromEnv        = "env"
	certFromSelfSigned = "self-signed"

	devCertLifetime = 365 * 24 * time.Hour
)

var errNoCertificate = errors.New("tls: no certificate configured (set TLS_CERT_PATH/TLS_KEY_PATH or TLS_CERT/TLS_KEY)")

// TLSSettings is the HTTPS part of config.Server.
type TLSSettings struct {
	EnableTLS       bool
	CertPath        string
	KeyPath         string
	CertPEM         string
	KeyPEM          string
	Production      bool
	AllowSelfSigned bool
}

func tlsSettingsFromConfig(cfg *config.Server) TLSSettings {
	return TLSSettings{
		EnableTLS:       cfg.EnableTLS,
		CertPath:        cfg.TLSCertPath,
		KeyPath:         cfg.TLSKeyPath,
		CertPEM:         cfg.TLSCertPEM,
		KeyPEM:          cfg.TLSKeyPEM,
		Production:      cfg.IsProduction(),
		AllowSelfSigned: cfg.TLSSelfSigned,
	}
}

// serverCert is what the HTTPS listener needs. CertFile and KeyFile are only
// set for certificates read from disk and are passed to ListenAndServeTLS.
type serverCert struct {
	Config   *tls.Config
	CertFile string
	KeyFile  string
	Source   string
}

// buildTLSConfig picks the first available certificate: files, then PEM from
// the environment, then a generated one for local development.
func buildTLSConfig(s TLSSettings) (serverCert, error) {
	switch {
	case s.CertPath != "" && s.KeyPath != "":
		cert, err := tls.LoadX509KeyPair(s.CertPath, s.KeyPath)
		if err != nil {
			return serverCert{}, fmt.Errorf("load key pair from %s: %w", s.CertPath, err)
		}
		return serverCert{Config: newTLSConfig(cert), CertFile: s.CertPath, KeyFile: s.KeyPath, Source: certFromFiles}, nil

	case s.CertPEM != "" && s.KeyPEM != "":
		cert, err := tls.X509KeyPair([]byte(s.CertPEM), []byte(s.KeyPEM))
		if err != nil {
			return serverCert{}, fmt.Errorf("parse TLS_CERT/TLS_KEY: %w", err)
		}
		return serverCert{Config: newTLSConfig(cert), Source: certFromEnv}, nil

	case !s.Production && s.AllowSelfSigned:
		cert, err := generateSelfSignedCert(time.Now())
		if err != nil {
			return serverCert{}, fmt.Errorf("generate development certificate: %w", err)
		}
		return serverCert{Config: newTLSConfig(cert), Source: certFromSelfSigned}, nil
	}
	return serverCert{}, errNoCertificate
}

func newTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
}

// generateSelfSignedCert issues a P-256 certificate for localhost, valid from
// an hour before now for devCertLifetime.
func generateSelfSignedCert(now time.Time) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"userdash development"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(devCertLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
