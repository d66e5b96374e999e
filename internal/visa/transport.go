package visa

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/viego-wallet/viego-backend/internal/config"
)

// Transport is the authenticated channel to the vendor sandbox: a two-way
// TLS http.Client plus the pre-computed Basic credentials. Build it once and
// share it; it is safe for concurrent use.
type Transport struct {
	httpClient    *http.Client
	authorization string
	apiKey        string
	sharedSecret  string
}

// NewTransport loads the client certificate, key and CA bundle named in cfg
// and returns a ready transport. It never touches the network; every missing
// or unreadable credential is reported as a *ConfigError.
func NewTransport(cfg config.VisaConfig) (*Transport, error) {
	if err := requireCredentials(cfg); err != nil {
		return nil, err
	}
	if cfg.CertPath == "" {
		return nil, &ConfigError{Field: "VISA_CERT_PATH"}
	}
	if cfg.KeyPath == "" {
		return nil, &ConfigError{Field: "VISA_KEY_PATH"}
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, &ConfigError{Field: "client certificate", Err: err}
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	if cfg.CAPath != "" {
		pem, err := os.ReadFile(cfg.CAPath)
		if err != nil {
			return nil, &ConfigError{Field: "VISA_CA_PATH", Err: err}
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &ConfigError{Field: "VISA_CA_PATH", Err: errors.New("no certificates found in CA bundle")}
		}
		tlsConfig.RootCAs = pool
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     tlsConfig,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return newTransport(httpClient, cfg), nil
}

// NewTransportFromClient wraps an already configured http.Client, for
// callers that manage TLS themselves. Basic credentials are still required.
func NewTransportFromClient(httpClient *http.Client, cfg config.VisaConfig) (*Transport, error) {
	if httpClient == nil {
		return nil, &ConfigError{Field: "http client"}
	}
	if err := requireCredentials(cfg); err != nil {
		return nil, err
	}
	return newTransport(httpClient, cfg), nil
}

func requireCredentials(cfg config.VisaConfig) error {
	if cfg.UserID == "" {
		return &ConfigError{Field: "VISA_USER_ID"}
	}
	if cfg.Password == "" {
		return &ConfigError{Field: "VISA_PASSWORD"}
	}
	return nil
}

func newTransport(httpClient *http.Client, cfg config.VisaConfig) *Transport {
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.UserID + ":" + cfg.Password))
	return &Transport{
		httpClient:    httpClient,
		authorization: "Basic " + creds,
		apiKey:        cfg.APIKey,
		sharedSecret:  cfg.SharedSecret,
	}
}

// Authorization returns the Basic auth header value.
func (t *Transport) Authorization() string { return t.authorization }

// HasPayToken reports whether x-pay-token signing is configured.
func (t *Transport) HasPayToken() bool { return t.apiKey != "" && t.sharedSecret != "" }

// PayToken signs a request for endpoints that require the x-pay-token
// header: xv2:<unix seconds>:<hex HMAC-SHA256 over ts+path+query+body>.
// resourcePath is the request path without the leading slash.
func (t *Transport) PayToken(resourcePath, query string, body []byte, now time.Time) (string, error) {
	if !t.HasPayToken() {
		return "", &ConfigError{Field: "VISA_API_KEY/VISA_SHARED_SECRET"}
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(t.sharedSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(strings.TrimPrefix(resourcePath, "/")))
	mac.Write([]byte(query))
	mac.Write(body)
	return fmt.Sprintf("xv2:%s:%s", ts, hex.EncodeToString(mac.Sum(nil))), nil
}
