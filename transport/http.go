// Package transport contains the thin wire clients the backend adapters
// inject: a JSON-over-HTTP requester and a newline-framed JSON-RPC socket
// client.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/blc-org/una/lnclient"
)

const defaultRequestTimeout = 30 * time.Second

// HttpOptions is the connection configuration shared by all REST backends.
type HttpOptions struct {
	BaseURL string
	// CertHex is a hex encoded PEM server certificate. When empty, server
	// certificate verification is skipped (node certificates are usually
	// self-signed).
	CertHex string
	// SocksProxyURL is applied uniformly to all outbound calls when set.
	SocksProxyURL string
}

// HttpClient performs JSON requests against a single backend base URL.
type HttpClient struct {
	baseURL string
	client  *http.Client
}

func NewHttpClient(opts HttpOptions) (*HttpClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: true,
	}
	if opts.CertHex != "" {
		certBytes, err := hex.DecodeString(opts.CertHex)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate hex: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(certBytes) {
			return nil, fmt.Errorf("failed to parse PEM certificate")
		}
		tlsConfig = &tls.Config{RootCAs: pool}
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
	}

	if opts.SocksProxyURL != "" {
		socksURL, err := url.Parse(opts.SocksProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid SOCKS proxy URL: %w", err)
		}
		dialer, err := proxy.FromURL(socksURL, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS dialer: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		}
	}

	return &HttpClient{
		baseURL: opts.BaseURL,
		client: &http.Client{
			Transport: transport,
			Timeout:   defaultRequestTimeout,
		},
	}, nil
}

// Request issues a single HTTP call and decodes the JSON response into out.
// A non-2xx status or a body-level "error" field is returned as a
// BackendError carrying the backend's own message.
func (c *HttpClient) Request(ctx context.Context, method string, path string, headers map[string]string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if backendErr := extractBodyError(responseBody); backendErr != nil {
		return backendErr
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return lnclient.NewBackendError("backend returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return lnclient.NewBackendError("failed to decode backend response: %s", err.Error())
	}
	return nil
}

// extractBodyError surfaces an application-level error field carried in an
// otherwise well-formed JSON response body.
func extractBodyError(body []byte) error {
	var probe struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	if len(probe.Error) == 0 || string(probe.Error) == "null" || string(probe.Error) == "false" {
		return nil
	}
	if probe.Message != "" {
		return lnclient.NewBackendError("%s", probe.Message)
	}
	var errText string
	if err := json.Unmarshal(probe.Error, &errText); err == nil {
		return lnclient.NewBackendError("%s", errText)
	}
	return lnclient.NewBackendError("%s", string(probe.Error))
}
