package net

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	bufSize = 64 * 1024

	// DefaultQueueSize is the number of messages buffered per destination
	// before Send starts dropping.
	DefaultQueueSize = 256

	// DefaultTimeout applies when a transport is created without a timeout.
	DefaultTimeout = time.Second
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Resolver maps a node id to a network address.
type Resolver interface {
	Addr(id string) (string, bool)
}

// StreamLayer is used with the NetworkTransport to provide the low level stream
// abstraction.
type StreamLayer interface {
	net.Listener

	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the publicly-reachable address of the stream
	AdvertiseAddr() string
}

/*
NetworkTransport provides a network based transport that can be
used to communicate with nodes on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

Messages are one-way: each one is a JSON-encoded envelope followed by a
newline, written on a pooled outbound connection to the destination. Replies
are ordinary messages sent back to the source id. When the source id cannot
be resolved, as for an ad-hoc client, the reply is written back on the
connection the request came in on.

Each destination has its own queue and sender goroutine, so a slow or
unreachable node never blocks Send.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	localID  string
	resolver Resolver

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	queues     map[string]chan *Message
	queuesLock sync.Mutex
	queueSize  int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
	msgID   int64
}

type netConn struct {
	target string
	conn   net.Conn
	w      *bufio.Writer
	enc    *json.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines, and to bound how long
// an inbound request waits for the node's answer.
func NewNetworkTransport(
	stream StreamLayer,
	localID string,
	resolver Resolver,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	trans := &NetworkTransport{
		connPool:   make(map[string][]*netConn),
		queues:     make(map[string]chan *Message),
		queueSize:  DefaultQueueSize,
		consumeCh:  make(chan RPC),
		localID:    localID,
		resolver:   resolver,
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connPoolLock.Lock()
		for target, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
			delete(n.connPool, target)
		}
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface. It is the node id that
// messages from this transport carry as their source.
func (n *NetworkTransport) LocalAddr() string {
	return n.localID
}

// AdvertiseAddr returns the network address other nodes reach us on.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Send implements the Transport interface. The message is queued for the
// destination's sender goroutine; if the queue is full it is dropped and an
// error is returned.
func (n *NetworkTransport) Send(target string, body *Body) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	addr, ok := n.resolver.Addr(target)
	if !ok {
		return fmt.Errorf("unknown node %s", target)
	}

	b := *body
	b.MsgID = int(atomic.AddInt64(&n.msgID, 1))
	msg := &Message{
		Src:  n.localID,
		Dest: target,
		Body: b,
	}

	select {
	case n.queue(addr) <- msg:
		return nil
	default:
		return fmt.Errorf("outbound queue to %s is full", target)
	}
}

// queue returns the outbound queue for addr, starting its sender if needed.
func (n *NetworkTransport) queue(addr string) chan *Message {
	n.queuesLock.Lock()
	defer n.queuesLock.Unlock()

	q, ok := n.queues[addr]
	if !ok {
		q = make(chan *Message, n.queueSize)
		n.queues[addr] = q
		go n.sendLoop(addr, q)
	}
	return q
}

func (n *NetworkTransport) sendLoop(addr string, q <-chan *Message) {
	for {
		select {
		case msg := <-q:
			if err := n.sendMessage(addr, msg); err != nil {
				n.logger.WithFields(logrus.Fields{
					"dest":  msg.Dest,
					"addr":  addr,
					"type":  msg.Body.Type,
					"error": err,
				}).Debug("Send failed")
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	// Check for a pooled conn
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	// Dial a new connection
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	// Wrap the conn
	netConn := &netConn{
		target: target,
		conn:   conn,
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	netConn.enc = json.NewEncoder(netConn.w)

	// Done
	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// sendMessage writes one message on a pooled connection to addr.
func (n *NetworkTransport) sendMessage(addr string, msg *Message) error {
	conn, err := n.getConn(addr, n.timeout)
	if err != nil {
		return err
	}

	if n.timeout > 0 {
		conn.conn.SetWriteDeadline(time.Now().Add(n.timeout))
	}

	if err := conn.enc.Encode(msg); err != nil {
		conn.Release()
		return err
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}

	n.returnConn(conn)
	return nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// inboundConn is the write side of an accepted connection, used to answer
// clients that cannot be reached by id.
type inboundConn struct {
	sync.Mutex
	conn net.Conn
	w    *bufio.Writer
	enc  *json.Encoder
}

func (c *inboundConn) write(msg *Message, timeout time.Duration) error {
	c.Lock()
	defer c.Unlock()

	if timeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := c.enc.Encode(msg); err != nil {
		return err
	}
	return c.w.Flush()
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	dec := json.NewDecoder(r)

	w := bufio.NewWriterSize(conn, bufSize)
	in := &inboundConn{
		conn: conn,
		w:    w,
		enc:  json.NewEncoder(w),
	}

	for {
		if err := n.handleMessage(dec, in); err != nil {

			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming message")
			} else {
				if err != io.EOF {
					n.logger.WithField("error", err).Error("Failed to decode incoming message")
				}
			}
			return
		}
	}
}

// handleMessage is used to decode and dispatch a single message.
func (n *NetworkTransport) handleMessage(dec *json.Decoder, in *inboundConn) error {
	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return err
	}

	// Replies need no answer
	if msg.Body.IsReply() {
		select {
		case n.consumeCh <- RPC{Src: msg.Src, Body: &msg.Body}:
			return nil
		case <-n.shutdownCh:
			return ErrTransportShutdown
		}
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Src:      msg.Src,
		Body:     &msg.Body,
		RespChan: respCh,
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	go n.awaitReply(&msg, respCh, in)

	return nil
}

// awaitReply waits for the node's answer to msg and sends it back.
func (n *NetworkTransport) awaitReply(msg *Message, respCh <-chan RPCResponse, in *inboundConn) {
	var reply *Body

	select {
	case resp := <-respCh:
		reply = replyTo(&msg.Body, resp)
	case <-time.After(n.timeout):
		reply = timeoutBody(&msg.Body)
	case <-n.shutdownCh:
		return
	}

	if reply == nil {
		return
	}

	if _, ok := n.resolver.Addr(msg.Src); ok {
		if err := n.Send(msg.Src, reply); err != nil {
			n.logger.WithError(err).Debug("Sending reply")
		}
		return
	}

	reply.MsgID = int(atomic.AddInt64(&n.msgID, 1))
	out := &Message{
		Src:  n.localID,
		Dest: msg.Src,
		Body: *reply,
	}
	if err := in.write(out, n.timeout); err != nil {
		n.logger.WithError(err).Debug("Writing reply on inbound connection")
	}
}
