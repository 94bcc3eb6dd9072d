package config

import (
	"io"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/peers"
)

// Transports a node can run on.
const (
	// StdioTransport reads messages on stdin and writes them on stdout, the
	// way a test harness drives a node.
	StdioTransport = "stdio"

	// TCPTransport connects nodes directly, with addresses from peers.json.
	TCPTransport = "tcp"
)

// Default configuration values.
const (
	DefaultLogLevel       = "info"
	DefaultTransport      = StdioTransport
	DefaultBindAddr       = "127.0.0.1:1337"
	DefaultServiceAddr    = "127.0.0.1:8000"
	DefaultHeartbeat      = node.DefaultHeartbeat
	DefaultFanout         = peers.DefaultFanout
	DefaultTopology       = string(peers.Grid)
	DefaultAcceptTopology = false
	DefaultMaxBatch       = 0
	DefaultTCPTimeout     = 1000 * time.Millisecond
	DefaultMaxPool        = 2
	DefaultNoService      = false
)

// Config contains all the configuration properties of a Murmur node.
type Config struct {
	// DataDir is the top-level directory containing peers.json and the
	// optional murmur.toml
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of info and debug logs.
	LogFile string `mapstructure:"log-file"`

	// Transport is either "stdio" or "tcp".
	Transport string `mapstructure:"transport"`

	// NodeID is this node's id in peers.json. Only used with the tcp
	// transport; on stdio the id comes with the init message.
	NodeID string `mapstructure:"node-id"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes over tcp.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// HeartbeatTimeout is the interval between gossip rounds.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// Fanout is the branching factor of the tree and ring topologies.
	Fanout int `mapstructure:"fanout"`

	// Topology is one of grid, tree, ring, full.
	Topology string `mapstructure:"topology"`

	// AcceptTopology lets a topology message replace the computed
	// neighbours.
	AcceptTopology bool `mapstructure:"accept-topology"`

	// MaxBatch caps the number of values in one gossip message. 0 means no
	// cap.
	MaxBatch int `mapstructure:"max-batch"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the timeout of gossip connections, and how long a
	// transport waits for the node to answer a request.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Stdin and Stdout carry protocol traffic in stdio mode. They default to
	// the process's standard streams.
	Stdin  io.Reader `mapstructure:"-"`
	Stdout io.Writer `mapstructure:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		Transport:        DefaultTransport,
		BindAddr:         DefaultBindAddr,
		ServiceAddr:      DefaultServiceAddr,
		NoService:        DefaultNoService,
		HeartbeatTimeout: DefaultHeartbeat,
		Fanout:           DefaultFanout,
		Topology:         DefaultTopology,
		AcceptTopology:   DefaultAcceptTopology,
		MaxBatch:         DefaultMaxBatch,
		MaxPool:          DefaultMaxPool,
		TCPTimeout:       DefaultTCPTimeout,
		Stdin:            os.Stdin,
		Stdout:           os.Stdout,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.HeartbeatTimeout = 10 * time.Millisecond
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetLogger replaces the logger built from LogLevel and LogFile.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// PeersFile returns the full path of peers.json.
func (c *Config) PeersFile() string {
	return peers.NewJSONPeers(c.DataDir).Path()
}

// NodeConfig derives the node's tunables from the configuration.
func (c *Config) NodeConfig() (*node.Config, error) {
	kind, err := peers.ParseKind(c.Topology)
	if err != nil {
		return nil, err
	}

	return node.NewConfig(
		c.HeartbeatTimeout,
		c.Fanout,
		kind,
		c.AcceptTopology,
		c.MaxBatch,
		c.baseLogger(),
	), nil
}

// Logger returns a formatted logrus Entry, with prefix set to "murmur".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "murmur")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		// stdout carries protocol messages
		c.logger.Out = os.Stderr

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  c.LogFile,
					logrus.DebugLevel: c.LogFile,
				},
				&logrus.JSONFormatter{},
			))
		}
	}
	return c.logger
}

// DefaultDataDir return the default directory name for top-level Murmur config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Murmur")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Murmur")
		} else {
			return filepath.Join(home, ".murmur")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
