package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blc-org/una/lnclient"
)

func TestNewHttpClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHttpClient(HttpOptions{})
	assert.Error(t, err)
}

func TestNewHttpClient_RejectsBadCertHex(t *testing.T) {
	_, err := NewHttpClient(HttpOptions{BaseURL: "https://localhost", CertHex: "not-hex"})
	assert.Error(t, err)
}

func TestRequest_DecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "value", r.Header.Get("X-Test"))
		fmt.Fprint(w, `{"name": "una"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewHttpClient(HttpOptions{BaseURL: server.URL})
	require.NoError(t, err)

	var out struct {
		Name string `json:"name"`
	}
	err = client.Request(context.Background(), http.MethodGet, "/", map[string]string{"X-Test": "value"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "una", out.Name)
}

func TestRequest_NonSuccessStatusIsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `upstream unavailable`)
	}))
	t.Cleanup(server.Close)

	client, err := NewHttpClient(HttpOptions{BaseURL: server.URL})
	require.NoError(t, err)

	err = client.Request(context.Background(), http.MethodGet, "/", nil, nil, nil)
	var backendErr *lnclient.BackendError
	require.ErrorAs(t, err, &backendErr)
}

func TestExtractBodyError(t *testing.T) {
	assert.Nil(t, extractBodyError([]byte(`{"result": "ok"}`)))
	assert.Nil(t, extractBodyError([]byte(`{"error": null}`)))
	assert.Nil(t, extractBodyError([]byte(`{"error": false}`)))
	assert.Nil(t, extractBodyError([]byte(`not json`)))
	assert.Nil(t, extractBodyError([]byte(`[1, 2, 3]`)))

	err := extractBodyError([]byte(`{"error": "Not found"}`))
	var backendErr *lnclient.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "Not found", backendErr.Message)

	err = extractBodyError([]byte(`{"error": true, "code": 1, "message": "bad auth"}`))
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "bad auth", backendErr.Message)
}
