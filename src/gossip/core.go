// Package gossip implements batched propagation of values between
// neighbouring nodes.
//
// Values learned from clients or from other nodes are inserted into the
// delivery store and become pending for every neighbour, except the one they
// came from. On every tick, Core produces at most one Batch per neighbour,
// carrying all the values still pending for it. A neighbour acknowledges a
// batch by echoing the values it received, which clears them. Lost gossip and
// lost acknowledgements look the same from here, and the next tick heals
// both.
package gossip

import (
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/peers"
	"github.com/mosaicnetworks/murmur/src/store"
)

// Batch is the set of values to send to one neighbour in one gossip message.
type Batch struct {
	To     string
	Values []common.Value
}

// Core owns the delivery store, the topology and the pending obligations of
// one node. It is not safe for concurrent use.
type Core struct {
	topology *peers.Topology
	store    *store.InmemStore
	pending  *Pending

	// MaxBatch caps the number of values in a single batch. 0 means no cap.
	maxBatch int

	logger *logrus.Entry
}

// NewCore creates a Core for an initialised topology.
func NewCore(topology *peers.Topology, maxBatch int, logger *logrus.Entry) *Core {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Core{
		topology: topology,
		store:    store.NewInmemStore(),
		pending:  NewPending(),
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Broadcast delivers a value submitted by a client. It reports whether the
// value was new.
func (c *Core) Broadcast(v common.Value) bool {
	if !c.store.Insert(v) {
		return false
	}
	c.pending.AddAll(c.topology.Neighbors(), v, "")
	return true
}

// Gossip merges values received from another node and returns the ones that
// were not known. New values become pending for every neighbour except from.
// Anything from already sent is no longer owed to it.
func (c *Core) Gossip(from string, values []common.Value) []common.Value {
	newly := c.store.Merge(values)

	neighbors := c.topology.Neighbors()
	for _, v := range newly {
		c.pending.AddAll(neighbors, v, from)
	}

	c.pending.Clear(from, values)

	if len(newly) > 0 {
		c.logger.WithFields(logrus.Fields{
			"from":  from,
			"recv":  len(values),
			"newly": len(newly),
		}).Debug("Gossip")
	}

	return newly
}

// Ack clears the values a neighbour confirmed and returns how many
// obligations were cleared.
func (c *Core) Ack(from string, values []common.Value) int {
	return c.pending.Clear(from, values)
}

// Tick returns one batch per neighbour that has pending values. Nothing is
// cleared: a batch is sent again on every tick until it is acknowledged. The
// topology freezes when the first batch is produced.
func (c *Core) Tick() []Batch {
	var batches []Batch

	for _, n := range c.topology.Neighbors() {
		values := c.pending.For(n)
		if len(values) == 0 {
			continue
		}
		if c.maxBatch > 0 && len(values) > c.maxBatch {
			values = values[:c.maxBatch]
		}
		batches = append(batches, Batch{To: n, Values: values})
	}

	if len(batches) > 0 && !c.topology.Frozen() {
		c.topology.Freeze()
		c.logger.WithField("neighbors", c.topology.Neighbors()).Debug("Topology frozen")
	}

	return batches
}

// Override applies a topology override. Neighbours introduced by the
// override become owed every value known so far, and neighbours it removed
// are forgotten.
func (c *Core) Override(m map[string][]string) (added, ignored []string, err error) {
	before := c.topology.Neighbors()

	added, ignored, err = c.topology.Override(m)
	if err != nil {
		return added, ignored, err
	}

	for _, n := range before {
		if !c.topology.IsNeighbor(n) {
			c.pending.Drop(n)
		}
	}

	known := c.store.Snapshot()
	for _, n := range added {
		for _, v := range known {
			c.pending.Add(n, v)
		}
	}

	return added, ignored, nil
}

// Read returns every value delivered so far, sorted.
func (c *Core) Read() []common.Value {
	return c.store.Snapshot()
}

// Known returns the number of values delivered.
func (c *Core) Known() int {
	return c.store.Len()
}

// Pending returns the total number of unacknowledged obligations.
func (c *Core) Pending() int {
	return c.pending.Len()
}

// PendingFor returns the values not yet acknowledged by neighbor.
func (c *Core) PendingFor(neighbor string) []common.Value {
	return c.pending.For(neighbor)
}

// Neighbors ...
func (c *Core) Neighbors() []string {
	return c.topology.Neighbors()
}

// Topology ...
func (c *Core) Topology() *peers.Topology {
	return c.topology
}
