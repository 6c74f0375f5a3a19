package config

const (
	LndRestBackendType   = "lnd-rest"
	ClnSocketBackendType = "cln-socket"
	ClnRestBackendType   = "cln-rest"
	EclairBackendType    = "eclair-rest"
	LndHubBackendType    = "lndhub"
)

type AppConfig struct {
	BackendType string `envconfig:"BACKEND_TYPE"`

	URL         string `envconfig:"BACKEND_URL"`
	MacaroonHex string `envconfig:"MACAROON_HEX"`
	CertHex     string `envconfig:"CERT_HEX"`

	SocketPath string `envconfig:"CLN_SOCKET_PATH"`
	SocketHost string `envconfig:"CLN_SOCKET_HOST"`

	EclairUser     string `envconfig:"ECLAIR_USER"`
	EclairPassword string `envconfig:"ECLAIR_PASSWORD"`

	LndHubURI      string `envconfig:"LNDHUB_URI"`
	LndHubLogin    string `envconfig:"LNDHUB_LOGIN"`
	LndHubPassword string `envconfig:"LNDHUB_PASSWORD"`

	SocksProxyURL string `envconfig:"SOCKS_PROXY_URL"`

	Workdir   string `envconfig:"WORK_DIR"`
	Port      string `envconfig:"PORT" default:"1610"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"4"`
	LogToFile bool   `envconfig:"LOG_TO_FILE" default:"true"`
}
