package fileserver

import (
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	E "github.com/sagernet/sing/common/exceptions"
)

const (
	DefaultPort       = 8000
	DefaultServerName = "sing-fileserver"
)

// DefaultListen is every local interface on DefaultPort.
var DefaultListen = netip.AddrPortFrom(netip.IPv6Unspecified(), DefaultPort)

type Config struct {
	// Root is the served directory. Empty means the directory of the running executable.
	Root string `yaml:"root"`

	Listen     netip.AddrPort `yaml:"-"`
	ServerName string         `yaml:"-"`

	Gzip              bool          `yaml:"gzip"`
	MaxConnections    int           `yaml:"max_connections" validate:"gte=0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" validate:"gte=0"`
	// ShutdownTimeout is how long in-flight requests may finish after a stop
	// request. Zero drops them immediately.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	MetricsListen   string        `yaml:"metrics_listen"`
}

func DefaultConfig() Config {
	return Config{
		Listen:     DefaultListen,
		ServerName: DefaultServerName,
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return E.Cause(err, "invalid config")
	}
	if !c.Listen.IsValid() {
		return E.New("invalid config: missing listen address")
	}
	if c.MetricsListen != "" {
		_, err = ParseListen(c.MetricsListen)
		if err != nil {
			return E.Cause(err, "invalid config")
		}
	}
	return nil
}

// ParseListen parses host:port, treating an empty host as every interface.
func ParseListen(address string) (netip.AddrPort, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return netip.AddrPort{}, E.Cause(err, "parse listen address ", address)
	}
	addr := tcpAddr.AddrPort().Addr().Unmap()
	if !addr.IsValid() {
		addr = netip.IPv6Unspecified()
	}
	return netip.AddrPortFrom(addr, uint16(tcpAddr.Port)), nil
}

func ExecutableDir() (string, error) {
	executable, err := os.Executable()
	if err != nil {
		return "", E.Cause(err, "locate executable")
	}
	executable, err = filepath.EvalSymlinks(executable)
	if err != nil {
		return "", E.Cause(err, "resolve executable")
	}
	return filepath.Dir(executable), nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		return ExecutableDir()
	}
	absolute, err := filepath.Abs(root)
	if err != nil {
		return "", E.Cause(err, "resolve root ", root)
	}
	resolved, err := filepath.EvalSymlinks(absolute)
	if err != nil {
		return "", E.Cause(err, "resolve root ", root)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", E.Cause(err, "stat root ", root)
	}
	if !info.IsDir() {
		return "", E.New("root ", root, " is not a directory")
	}
	return resolved, nil
}
