package eventbridge

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/warden/internal/config"
)

const (
	// DefaultHost keeps the bridge on loopback unless bridge.addr says otherwise.
	DefaultHost = "127.0.0.1"
	// DefaultPort matches the bridge.addr written by config.InitDir.
	DefaultPort = 7420
	// DefaultMaxBodyBytes limits request payloads to 64 KB.
	DefaultMaxBodyBytes int64 = 64 << 10

	DefaultReadTimeout  = 5 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Environment overrides, applied after the project config.
const (
	EnvBridgeAddr    = "WARDEN_BRIDGE_ADDR"
	EnvBridgeEnabled = "WARDEN_BRIDGE_ENABLED"
)

// Settings captures runtime configuration for the HTTP event bridge server.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultSettings returns a disabled bridge with default limits.
func DefaultSettings() Settings {
	return Settings{
		Host:         DefaultHost,
		Port:         DefaultPort,
		MaxBodyBytes: DefaultMaxBodyBytes,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		IdleTimeout:  DefaultIdleTimeout,
	}
}

// SettingsFromConfig enables the bridge when bridge.addr (or
// WARDEN_BRIDGE_ADDR) holds a host:port. WARDEN_BRIDGE_ENABLED can force it
// either way.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := DefaultSettings()
	addr := ""
	if cfg != nil {
		addr = cfg.Project.Bridge.Addr
	}
	if env := strings.TrimSpace(os.Getenv(EnvBridgeAddr)); env != "" {
		addr = env
	}
	if host, port, ok := parseAddr(addr); ok {
		settings.Enabled = true
		if host != "" {
			settings.Host = host
		}
		if port > 0 {
			settings.Port = port
		}
	}
	if enabled, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvBridgeEnabled))); err == nil {
		settings.Enabled = enabled
	}
	return settings
}

// parseAddr splits host:port. An out of range port is reported as zero so the
// default applies.
func parseAddr(addr string) (host string, port int, ok bool) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, false
	}
	host, portText, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, false
	}
	port, err = strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		port = 0
	}
	return strings.TrimSpace(host), port, true
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
