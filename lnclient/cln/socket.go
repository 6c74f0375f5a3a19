package cln

import (
	"errors"
	"fmt"

	"github.com/blc-org/una/transport"
)

type SocketConfig struct {
	// Path to the lightning-rpc unix socket. Mutually exclusive with
	// Host/Port.
	Path string
	Host string
	Port uint16
}

// NewSocketService connects to Core Lightning over its JSON-RPC socket.
func NewSocketService(config SocketConfig) (*ClnService, error) {
	if config.Path != "" {
		return newClnService(transport.NewUnixRpcClient(config.Path), "cln-socket"), nil
	}
	if config.Host != "" && config.Port != 0 {
		address := fmt.Sprintf("%s:%d", config.Host, config.Port)
		return newClnService(transport.NewTcpRpcClient(address), "cln-socket"), nil
	}
	return nil, errors.New("either a socket path or host and port are required")
}
