package market

import (
	"time"

	"github.com/orcanet/overlay/dht"
	"github.com/orcanet/overlay/transport"
	"github.com/sirupsen/logrus"
)

// Default configuration values (§6).
const (
	DefaultListenTCPPort           = uint16(16899)
	DefaultWorkerThreadName        = "coordinator"
	DefaultFileTTL                 = time.Hour
	DefaultInitialBootstrapBackoff = 77 * time.Second
)

// Config holds every Coordinator construction parameter. Construct with
// NewConfig, which seeds every field with its §6 default, then adjust with
// the setter methods, matching the teacher's Options pattern.
type Config struct {
	ListenTCPPort           uint16
	BootNodes               *dht.BootNodeSet
	WorkerThreadName        string
	FileTTL                 time.Duration
	PublicAddress           *transport.OverlayAddress
	InitialBootstrapBackoff time.Duration
	BootstrapInterval       time.Duration
	Logger                  *logrus.Logger
}

// NewConfig returns a Config populated with every §6 default: a 77s backoff
// for the first bootstrap refresh tick, then dht.DefaultRefreshInterval
// (10m) for every steady-state tick thereafter.
func NewConfig() *Config {
	return &Config{
		ListenTCPPort:           DefaultListenTCPPort,
		WorkerThreadName:        DefaultWorkerThreadName,
		FileTTL:                 DefaultFileTTL,
		InitialBootstrapBackoff: DefaultInitialBootstrapBackoff,
		BootstrapInterval:       dht.DefaultRefreshInterval,
		Logger:                  logrus.StandardLogger(),
	}
}

// WithListenTCPPort sets the TCP listen port; 0 requests an ephemeral port.
func (c *Config) WithListenTCPPort(port uint16) *Config {
	c.ListenTCPPort = port
	return c
}

// WithBootNodes sets the boot node set consulted at startup.
func (c *Config) WithBootNodes(nodes *dht.BootNodeSet) *Config {
	c.BootNodes = nodes
	return c
}

// WithWorkerThreadName sets the logging-context name for the Coordinator's
// worker goroutine (Go has no OS thread naming API; this is attached as a
// logrus field on every line the Coordinator emits).
func (c *Config) WithWorkerThreadName(name string) *Config {
	c.WorkerThreadName = name
	return c
}

// WithFileTTL sets the supplier-table and provider-record TTL. Must be
// strictly positive or New returns ErrNonPositiveFileTTL.
func (c *Config) WithFileTTL(ttl time.Duration) *Config {
	c.FileTTL = ttl
	return c
}

// WithPublicAddress registers an externally reachable address hint. It is
// reported by Listeners in addition to the bound listener address.
func (c *Config) WithPublicAddress(addr transport.OverlayAddress) *Config {
	c.PublicAddress = &addr
	return c
}

// WithBootstrapInterval sets the steady-state bootstrap refresh period,
// used for every refresh tick after the first.
func (c *Config) WithBootstrapInterval(interval time.Duration) *Config {
	c.BootstrapInterval = interval
	return c
}

// WithInitialBootstrapBackoff sets the period of the first bootstrap
// refresh tick after construction, before the steady-state interval
// (BootstrapInterval) takes over.
func (c *Config) WithInitialBootstrapBackoff(backoff time.Duration) *Config {
	c.InitialBootstrapBackoff = backoff
	return c
}

// WithLogger overrides the default standard logger.
func (c *Config) WithLogger(logger *logrus.Logger) *Config {
	c.Logger = logger
	return c
}
