package node

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/gossip"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/peers"
	"github.com/mosaicnetworks/murmur/src/telemetry"
)

// ErrShutdown is returned by requests submitted to a node that has stopped.
var ErrShutdown = errors.New("node is shut down")

// Node defines a broadcast node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	// set by init, then only touched by the loop
	id     string
	idVal  atomic.Value
	core   *gossip.Core
	ticker clockwork.Ticker
	tickCh <-chan time.Time

	trans net.Transport
	netCh <-chan net.RPC

	submitCh chan net.RPC
	statsCh  chan chan map[string]string

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	start        time.Time
	gossipSent   int
	valuesSent   int
	sendErrors   int
	acksReceived int
}

// NewNode is a factory method that returns a Node instance
func NewNode(conf *Config, trans net.Transport) *Node {
	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}
	if conf.HeartbeatTimeout <= 0 {
		conf.HeartbeatTimeout = DefaultHeartbeat
	}
	if conf.TopologyKind == "" {
		conf.TopologyKind = peers.Grid
	}

	node := Node{
		conf:       conf,
		logger:     conf.Logger.WithField("this_id", ""),
		trans:      trans,
		netCh:      trans.Consumer(),
		submitCh:   make(chan net.RPC),
		statsCh:    make(chan chan map[string]string),
		shutdownCh: make(chan struct{}),
		start:      conf.Clock.Now(),
	}

	return &node
}

// Init sets the identity of the node and the ids of the whole cluster, for
// transports where membership is known up front. It must be called before
// Run. Under a harness that sends init messages, leave it to the message.
func (n *Node) Init(id string, nodeIDs []string) error {
	return n.init(id, nodeIDs)
}

func (n *Node) init(id string, nodeIDs []string) error {
	if s := n.getState(); s != Waiting {
		return common.NewRPCErr(common.PreconditionFailed, "node is already initialised")
	}
	if id == "" {
		return common.NewRPCErr(common.MalformedRequest, "init requires a node_id")
	}

	topology := peers.NewTopology(n.conf.TopologyKind, n.conf.Fanout)
	topology.Init(id, nodeIDs)

	n.id = id
	n.logger = n.conf.Logger.WithField("this_id", id)
	n.core = gossip.NewCore(topology, n.conf.MaxBatch, n.logger)

	n.ticker = n.conf.Clock.NewTicker(n.conf.HeartbeatTimeout)
	n.tickCh = n.ticker.Chan()

	n.idVal.Store(id)

	if !n.casState(Waiting, Gossiping) {
		n.ticker.Stop()
		return ErrShutdown
	}

	n.logger.WithFields(logrus.Fields{
		"nodes":     len(topology.Nodes()),
		"topology":  topology.Kind(),
		"neighbors": topology.Neighbors(),
		"heartbeat": n.conf.HeartbeatTimeout,
	}).Info("Initialised")

	return nil
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run invokes the main loop of the node. It returns after Shutdown.
func (n *Node) Run() {
	defer func() {
		if n.ticker != nil {
			n.ticker.Stop()
		}
	}()

	netCh := n.netCh

	for {
		select {
		case rpc, ok := <-netCh:
			if !ok {
				netCh = nil
				continue
			}
			n.processRPC(rpc)
		case rpc := <-n.submitCh:
			n.processRPC(rpc)
		case respCh := <-n.statsCh:
			respCh <- n.getStats()
		case <-n.tickCh:
			n.gossip()
		case <-n.shutdownCh:
			return
		}
	}
}

// gossip sends every neighbour the values it has not acknowledged yet.
func (n *Node) gossip() {
	batches := n.core.Tick()

	for _, b := range batches {
		err := n.trans.Send(b.To, net.NewGossipBody(b.Values))
		if err != nil {
			n.sendErrors++
			telemetry.SendErrors.WithLabelValues(n.id).Inc()
			n.logger.WithFields(logrus.Fields{
				"to":    b.To,
				"error": err,
			}).Debug("Gossip not sent")
			continue
		}
		n.gossipSent++
		n.valuesSent += len(b.Values)
		telemetry.GossipsSent.WithLabelValues(n.id).Inc()
		telemetry.GossipValuesSent.WithLabelValues(n.id).Add(float64(len(b.Values)))
	}

	n.updateGauges()

	if len(batches) > 0 {
		n.logStats()
	}
}

func (n *Node) updateGauges() {
	telemetry.KnownValues.WithLabelValues(n.id).Set(float64(n.core.Known()))
	telemetry.PendingObligations.WithLabelValues(n.id).Set(float64(n.core.Pending()))
}

// Submit runs a client request through the node's loop and returns the reply
// body. Error replies are returned as common.RPCErr.
func (n *Node) Submit(ctx context.Context, body *net.Body) (*net.Body, error) {
	if n.getState() == Shutdown {
		return nil, ErrShutdown
	}

	respCh := make(chan net.RPCResponse, 1)
	rpc := net.RPC{
		Src:      "local",
		Body:     body,
		RespChan: respCh,
	}

	select {
	case n.submitCh <- rpc:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}

	select {
	case resp := <-respCh:
		return resp.Response, resp.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

// Stats returns a snapshot of the node's counters, computed in the loop.
func (n *Node) Stats(ctx context.Context) (map[string]string, error) {
	if n.getState() == Shutdown {
		return nil, ErrShutdown
	}

	respCh := make(chan map[string]string, 1)

	select {
	case n.statsCh <- respCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}

	select {
	case s := <-respCh:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

func (n *Node) getStats() map[string]string {
	s := map[string]string{
		"id":          n.id,
		"state":       n.getState().String(),
		"uptime":      n.conf.Clock.Since(n.start).Round(time.Millisecond).String(),
		"heartbeat":   n.conf.HeartbeatTimeout.String(),
		"gossip_sent": strconv.Itoa(n.gossipSent),
		"values_sent": strconv.Itoa(n.valuesSent),
		"send_errors": strconv.Itoa(n.sendErrors),
		"acks":        strconv.Itoa(n.acksReceived),
		"known":       "0",
		"pending":     "0",
		"neighbors":   "",
		"topology":    string(n.conf.TopologyKind),
		"frozen":      "false",
	}

	if n.core != nil {
		s["known"] = strconv.Itoa(n.core.Known())
		s["pending"] = strconv.Itoa(n.core.Pending())
		s["neighbors"] = strings.Join(n.core.Neighbors(), ",")
		s["frozen"] = strconv.FormatBool(n.core.Topology().Frozen())
	}

	return s
}

func (n *Node) logStats() {
	stats := n.getStats()

	n.logger.WithFields(logrus.Fields{
		"known":       stats["known"],
		"pending":     stats["pending"],
		"gossip_sent": stats["gossip_sent"],
		"values_sent": stats["values_sent"],
		"acks":        stats["acks"],
		"state":       stats["state"],
	}).Debug("Stats")
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}

	n.shutdownOnce.Do(func() {
		n.conf.Logger.WithField("this_id", n.ID()).Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		close(n.shutdownCh)

		n.trans.Close()
	})
}

// ID returns the node id, empty until the node is initialised.
func (n *Node) ID() string {
	id, _ := n.idVal.Load().(string)
	return id
}

// GetState returns the current state.
func (n *Node) GetState() State {
	return n.getState()
}

// Done returns a channel closed by Shutdown.
func (n *Node) Done() <-chan struct{} {
	return n.shutdownCh
}
