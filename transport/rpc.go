package transport

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/blc-org/una/lnclient"
)

// responseTerminator marks the end of a complete JSON-RPC response on the
// socket. Fragments that do not yet end with it must not be parsed.
const responseTerminator = "}\n\n"

type rpcRequest struct {
	JsonRpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	Id      int         `json:"id"`
}

type rpcResponse struct {
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	Id      int             `json:"id"`
	JsonRpc string          `json:"jsonrpc"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RpcClient is a JSON-RPC client over a unix or TCP socket. Each call opens
// its own connection, matching how Core Lightning's JSON-RPC socket is
// typically consumed.
type RpcClient struct {
	network string
	address string
}

// NewUnixRpcClient connects over a unix domain socket path.
func NewUnixRpcClient(path string) *RpcClient {
	return &RpcClient{network: "unix", address: path}
}

// NewTcpRpcClient connects over TCP to host:port.
func NewTcpRpcClient(address string) *RpcClient {
	return &RpcClient{network: "tcp", address: address}
}

// Call issues one JSON-RPC request and decodes the result into out. The
// response is considered complete only once the stream ends with "}\n\n".
func (c *RpcClient) Call(ctx context.Context, method string, params interface{}, out interface{}) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, c.network, c.address)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	} else {
		if err := conn.SetDeadline(time.Now().Add(defaultRequestTimeout)); err != nil {
			return err
		}
	}

	requestBody, err := json.Marshal(&rpcRequest{
		JsonRpc: "2.0",
		Method:  method,
		Params:  params,
		Id:      0,
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(requestBody); err != nil {
		return err
	}

	responseBody, err := readUntilTerminator(conn)
	if err != nil {
		return err
	}

	var response rpcResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return lnclient.NewBackendError("failed to decode JSON-RPC response: %s", err.Error())
	}
	if response.Error != nil {
		return lnclient.NewBackendError("%s", response.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(response.Result, out); err != nil {
		return lnclient.NewBackendError("failed to decode JSON-RPC result: %s", err.Error())
	}
	return nil
}

func readUntilTerminator(conn net.Conn) ([]byte, error) {
	buffer := make([]byte, 4096)
	response := []byte{}
	for {
		n, err := conn.Read(buffer)
		if n > 0 {
			response = append(response, buffer[:n]...)
			if hasTerminator(response) {
				return response, nil
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

func hasTerminator(data []byte) bool {
	if len(data) < len(responseTerminator) {
		return false
	}
	return string(data[len(data)-len(responseTerminator):]) == responseTerminator
}
