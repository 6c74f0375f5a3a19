package cln

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blc-org/una/transport"
)

type RestConfig struct {
	URL           string
	MacaroonHex   string
	CertHex       string
	SocksProxyURL string
}

// restCaller tunnels JSON-RPC bodies through the c-lightning-REST proxy's
// /v1/rpc endpoint.
type restCaller struct {
	client      *transport.HttpClient
	macaroonHex string
}

// NewRestService connects to Core Lightning through a c-lightning-REST proxy.
func NewRestService(config RestConfig) (*ClnService, error) {
	if config.URL == "" || config.MacaroonHex == "" {
		return nil, errors.New("one or more required CLN REST configuration are missing")
	}

	client, err := transport.NewHttpClient(transport.HttpOptions{
		BaseURL:       config.URL,
		CertHex:       config.CertHex,
		SocksProxyURL: config.SocksProxyURL,
	})
	if err != nil {
		return nil, err
	}

	return newClnService(&restCaller{
		client:      client,
		macaroonHex: config.MacaroonHex,
	}, "cln-rest"), nil
}

func (c *restCaller) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      0,
	})
	if err != nil {
		return err
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"macaroon":     c.macaroonHex,
		"encodingtype": "hex",
	}
	return c.client.Request(ctx, http.MethodPost, "/v1/rpc", headers, body, out)
}
