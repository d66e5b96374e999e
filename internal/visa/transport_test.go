package visa_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viego-wallet/viego-backend/internal/config"
	"github.com/viego-wallet/viego-backend/internal/visa"
)

// clientCert writes a self-signed client certificate and key into dir and
// returns their paths plus the parsed certificate.
func clientCert(t *testing.T, dir string) (certPath, keyPath string, cert *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "viego-test-client"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	cert, err = x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parsing certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	certPath = filepath.Join(dir, "client.pem")
	keyPath = filepath.Join(dir, "client-key.pem")
	writePEM(t, certPath, "CERTIFICATE", der)
	writePEM(t, keyPath, "EC PRIVATE KEY", keyDER)
	return certPath, keyPath, cert
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewTransportRequiresCredentials(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, _ := clientCert(t, dir)

	valid := config.VisaConfig{UserID: "user", Password: "pass", CertPath: certPath, KeyPath: keyPath}

	tests := []struct {
		name   string
		mutate func(*config.VisaConfig)
	}{
		{"missing user id", func(c *config.VisaConfig) { c.UserID = "" }},
		{"missing password", func(c *config.VisaConfig) { c.Password = "" }},
		{"missing cert path", func(c *config.VisaConfig) { c.CertPath = "" }},
		{"missing key path", func(c *config.VisaConfig) { c.KeyPath = "" }},
		{"unreadable cert", func(c *config.VisaConfig) { c.CertPath = filepath.Join(dir, "nope.pem") }},
		{"key does not match", func(c *config.VisaConfig) { c.KeyPath = c.CertPath }},
		{"unreadable CA", func(c *config.VisaConfig) { c.CAPath = filepath.Join(dir, "missing-ca.pem") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := visa.NewTransport(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !visa.IsConfigError(err) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
			if visa.IsTransient(err) {
				t.Fatal("configuration errors must not be transient")
			}
		})
	}

	if _, err := visa.NewTransport(valid); err != nil {
		t.Fatalf("valid tuple: %v", err)
	}
}

func TestNewTransportRejectsEmptyCABundle(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, _ := clientCert(t, dir)
	caPath := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caPath, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := visa.NewTransport(config.VisaConfig{
		UserID: "user", Password: "pass", CertPath: certPath, KeyPath: keyPath, CAPath: caPath,
	})
	if !visa.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestTransportPresentsClientCertificate(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath, cert := clientCert(t, dir)

	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(cert)

	var gotAuth, gotSubject string
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if len(r.TLS.PeerCertificates) > 0 {
			gotSubject = r.TLS.PeerCertificates[0].Subject.CommonName
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"resource":{"userIdentifier":"u-1","isProfileActive":true}}`))
	}))
	server.TLS = &tls.Config{ClientAuth: tls.RequireAndVerifyClientCert, ClientCAs: clientCAs}
	server.StartTLS()
	defer server.Close()

	caPath := filepath.Join(dir, "server-ca.pem")
	writePEM(t, caPath, "CERTIFICATE", server.Certificate().Raw)

	transport, err := visa.NewTransport(config.VisaConfig{
		UserID: "user", Password: "pass", CertPath: certPath, KeyPath: keyPath, CAPath: caPath,
	})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	client, err := visa.NewClient(server.URL, transport)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	profile, err := client.GetProfile(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.UserIdentifier != "u-1" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if gotSubject != "viego-test-client" {
		t.Fatalf("server saw client certificate %q", gotSubject)
	}
	if gotAuth != "Basic dXNlcjpwYXNz" {
		t.Fatalf("unexpected Authorization %q", gotAuth)
	}
}

func TestPayTokenFormat(t *testing.T) {
	transport, err := visa.NewTransportFromClient(http.DefaultClient, config.VisaConfig{
		UserID: "user", Password: "pass", APIKey: "key", SharedSecret: "secret",
	})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Unix(1700000000, 0)
	body := []byte(`{"a":1}`)
	token, err := transport.PayToken("/vctc/alerthistory/v1/inquiries", "apikey=key", body, now)
	if err != nil {
		t.Fatalf("PayToken: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000" + "vctc/alerthistory/v1/inquiries" + "apikey=key" + `{"a":1}`))
	want := "xv2:1700000000:" + hex.EncodeToString(mac.Sum(nil))
	if token != want {
		t.Fatalf("token = %q, want %q", token, want)
	}
}

func TestPayTokenRequiresSecret(t *testing.T) {
	transport, err := visa.NewTransportFromClient(http.DefaultClient, config.VisaConfig{UserID: "user", Password: "pass"})
	if err != nil {
		t.Fatal(err)
	}
	if transport.HasPayToken() {
		t.Fatal("HasPayToken should be false without api key")
	}
	_, err = transport.PayToken("x", "", nil, time.Now())
	if !visa.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if !strings.Contains(err.Error(), "VISA_API_KEY") {
		t.Fatalf("error should name the missing setting: %v", err)
	}
}
