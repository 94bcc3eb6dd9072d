// Package murmur wires a broadcast node together from a configuration: the
// peers, the transport, the node itself and the optional HTTP service.
package murmur

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/node"
	"github.com/mosaicnetworks/murmur/src/peers"
	"github.com/mosaicnetworks/murmur/src/service"
)

// serviceShutdownTimeout bounds how long Run waits for in-flight HTTP
// requests when it stops.
const serviceShutdownTimeout = 5 * time.Second

// Murmur is a node with everything it needs to run.
type Murmur struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Peers     *peers.PeerSet
	Service   *service.Service

	logger *logrus.Entry
}

// NewMurmur ...
func NewMurmur(config *config.Config) *Murmur {
	engine := &Murmur{
		Config: config,
		logger: config.Logger(),
	}

	return engine
}

func (m *Murmur) initPeers() error {
	if m.Config.Transport != config.TCPTransport {
		return nil
	}

	peerStore := peers.NewJSONPeers(m.Config.DataDir)

	peerSet, err := peerStore.PeerSet()
	if err != nil {
		return err
	}

	if _, ok := peerSet.ByID[m.Config.NodeID]; !ok {
		return fmt.Errorf("node id %q not found in %s", m.Config.NodeID, peerStore.Path())
	}

	m.Peers = peerSet

	return nil
}

func (m *Murmur) initTransport() error {
	switch m.Config.Transport {
	case config.StdioTransport:
		m.Transport = net.NewStdioTransport(
			m.Config.Stdin,
			m.Config.Stdout,
			m.Config.TCPTimeout,
			m.logger.WithField("transport", "stdio"),
		)
	case config.TCPTransport:
		transport, err := net.NewTCPTransport(
			m.Config.BindAddr,
			m.Config.AdvertiseAddr,
			m.Config.NodeID,
			m.Peers,
			m.Config.MaxPool,
			m.Config.TCPTimeout,
			m.logger.WithField("transport", "tcp"),
		)
		if err != nil {
			return err
		}
		m.Transport = transport
	default:
		return fmt.Errorf("unknown transport %q (stdio, tcp)", m.Config.Transport)
	}

	return nil
}

func (m *Murmur) initNode() error {
	nodeConf, err := m.Config.NodeConfig()
	if err != nil {
		return err
	}

	m.Node = node.NewNode(nodeConf, m.Transport)

	// over stdio, the harness sends the membership with an init message
	if m.Peers != nil {
		m.logger.WithFields(logrus.Fields{
			"participants": m.Peers.IDs(),
			"id":           m.Config.NodeID,
		}).Debug("PARTICIPANTS")

		if err := m.Node.Init(m.Config.NodeID, m.Peers.IDs()); err != nil {
			return fmt.Errorf("failed to initialize node: %s", err)
		}
	}

	return nil
}

func (m *Murmur) initService() error {
	if !m.Config.NoService && m.Config.ServiceAddr != "" {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Node, m.logger)
	}
	return nil
}

// Init builds every component. A transport that was already set, for
// example an InmemTransport, is kept.
func (m *Murmur) Init() error {
	if err := m.initPeers(); err != nil {
		return err
	}

	if m.Transport == nil {
		if err := m.initTransport(); err != nil {
			return err
		}
	}

	if err := m.initNode(); err != nil {
		return err
	}

	if err := m.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the node, the transport and the service, and blocks until ctx is
// cancelled or the input of a stdio transport is exhausted. A service that
// cannot bind its address is logged and left out.
func (m *Murmur) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.Node.Run()
		return nil
	})

	g.Go(func() error {
		m.Transport.Listen()
		// end of input on stdio; on tcp the transport is already closed
		m.Node.Shutdown()
		return nil
	})

	if m.Service != nil {
		g.Go(func() error {
			// nodes started on one host share the configured address
			if err := m.Service.Serve(); err != nil {
				m.logger.WithError(err).Warn("HTTP service unavailable, node keeps running")
			}
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-m.Node.Done():
		}
		m.shutdown()
		return nil
	})

	err := g.Wait()

	m.logger.WithField("error", err).Debug("Stopped")

	return err
}

func (m *Murmur) shutdown() {
	m.Node.Shutdown()

	if m.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), serviceShutdownTimeout)
		defer cancel()
		if err := m.Service.Shutdown(ctx); err != nil {
			m.logger.WithError(err).Warn("Stopping service")
		}
	}
}
