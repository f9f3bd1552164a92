package aria2

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost    = "localhost"
	DefaultPort    = 6800
	DefaultPath    = "/jsonrpc"
	DefaultTimeout = 30 * time.Second
)

// Config describes how to reach one aria2 daemon. It is comparable and
// doubles as the Cache key.
type Config struct {
	Host   string
	Port   int
	Secure bool
	Secret string
	Path   string
	// Timeout bounds calls whose context has no deadline. Zero selects
	// DefaultTimeout, a negative value disables it.
	Timeout time.Duration
}

// DefaultConfig returns the settings of a stock local aria2c --enable-rpc.
func DefaultConfig() Config {
	return Config{
		Host: DefaultHost,
		Port: DefaultPort,
		Path: DefaultPath,
	}
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	return c
}

// Validate checks the fields that end up in the daemon URL.
func (c Config) Validate() error {
	c = c.withDefaults()
	if strings.TrimSpace(c.Host) == "" || strings.ContainsAny(c.Host, "/ ") {
		return fmt.Errorf("%w: bad host %q", ErrInvalidConfig, c.Host)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidConfig, c.Path)
	}
	return nil
}

func (c Config) hostPort() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WebsocketURL is ws(s)://host:port/path.
func (c Config) WebsocketURL() string {
	c = c.withDefaults()
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return scheme + "://" + c.hostPort() + c.Path
}

// HTTPURL is http(s)://host:port/path.
func (c Config) HTTPURL() string {
	c = c.withDefaults()
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.hostPort() + c.Path
}

func (c Config) callTimeout() time.Duration {
	switch {
	case c.Timeout < 0:
		return 0
	case c.Timeout == 0:
		return DefaultTimeout
	}
	return c.Timeout
}
