package node

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/peers"
)

// DefaultHeartbeat is the interval between two gossip rounds.
const DefaultHeartbeat = 150 * time.Millisecond

// Config holds the tunables of a node.
type Config struct {
	// HeartbeatTimeout is the gossip tick. Every tick, each neighbour with
	// unacknowledged values is sent all of them in one message.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// Fanout is the branching factor of the tree and ring topologies.
	Fanout int `mapstructure:"fanout"`

	// TopologyKind selects how neighbours are derived from the node ids.
	TopologyKind peers.Kind `mapstructure:"topology"`

	// AcceptTopology lets a topology message replace the computed
	// neighbours, once, before the first gossip.
	AcceptTopology bool `mapstructure:"accept-topology"`

	// MaxBatch caps the number of values in a single gossip message. 0 means
	// no cap.
	MaxBatch int `mapstructure:"max-batch"`

	Clock  clockwork.Clock
	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	fanout int,
	kind peers.Kind,
	acceptTopology bool,
	maxBatch int,
	logger *logrus.Logger) *Config {

	return &Config{
		HeartbeatTimeout: heartbeat,
		Fanout:           fanout,
		TopologyKind:     kind,
		AcceptTopology:   acceptTopology,
		MaxBatch:         maxBatch,
		Clock:            clockwork.NewRealClock(),
		Logger:           logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout: DefaultHeartbeat,
		Fanout:           peers.DefaultFanout,
		TopologyKind:     peers.Grid,
		Clock:            clockwork.NewRealClock(),
		Logger:           logger,
	}
}

// TestConfig returns the default configuration with a fast heartbeat and
// logs routed to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 10 * time.Millisecond
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
