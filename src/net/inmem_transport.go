package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Addresses are node ids.
// A message from A to B is delivered only if A is connected to B, and B's
// reply only if B is connected to A, so a partition is created by
// disconnecting both sides.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
	msgID      int64

	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 128),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    500 * time.Millisecond,
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, body *Body) error {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		return fmt.Errorf("failed to connect to peer: %v", target)
	}

	req := *body
	req.MsgID = int(atomic.AddInt64(&i.msgID, 1))

	go i.deliver(peer, &req)

	return nil
}

// deliver hands req to peer and routes the answer back to our consumer.
func (i *InmemTransport) deliver(peer *InmemTransport, req *Body) {
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Src:      i.localAddr,
		Body:     req,
		RespChan: respCh,
	}

	select {
	case peer.consumerCh <- rpc:
	case <-peer.shutdownCh:
		return
	case <-time.After(i.timeout):
		return
	}

	var resp RPCResponse
	select {
	case resp = <-respCh:
	case <-peer.shutdownCh:
		return
	case <-time.After(i.timeout):
		return
	}

	reply := replyTo(req, resp)
	if reply == nil {
		return
	}

	// the reply travels on the reverse link, which may be cut by now
	peer.RLock()
	back, ok := peer.peers[i.localAddr]
	peer.RUnlock()
	if !ok || back != i {
		return
	}

	select {
	case i.consumerCh <- RPC{Src: peer.localAddr, Body: reply}:
	case <-i.shutdownCh:
	case <-time.After(i.timeout):
	}
}

// Call injects a client request into this transport's own consumer and waits
// for the answer. Error bodies are returned as errors.
func (i *InmemTransport) Call(src string, body *Body, timeout time.Duration) (*Body, error) {
	req := *body
	req.MsgID = int(atomic.AddInt64(&i.msgID, 1))

	respCh := make(chan RPCResponse, 1)
	select {
	case i.consumerCh <- RPC{Src: src, Body: &req, RespChan: respCh}:
	case <-i.shutdownCh:
		return nil, ErrTransportShutdown
	case <-time.After(timeout):
		return nil, fmt.Errorf("command timed out")
	}

	select {
	case resp := <-respCh:
		reply := replyTo(&req, resp)
		if reply == nil {
			return nil, fmt.Errorf("no response to %s", req.Type)
		}
		if err := reply.Err(); err != nil {
			return nil, err
		}
		return reply, nil
	case <-i.shutdownCh:
		return nil, ErrTransportShutdown
	case <-time.After(timeout):
		return nil, fmt.Errorf("command timed out")
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.closeOnce.Do(func() {
		close(i.shutdownCh)
	})
	i.DisconnectAll()
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}

// ConnectAll connects every transport to every other one.
func ConnectAll(transports []*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}

// Partition cuts every link between the two groups, in both directions.
func Partition(left, right []*InmemTransport) {
	for _, a := range left {
		for _, b := range right {
			a.Disconnect(b.LocalAddr())
			b.Disconnect(a.LocalAddr())
		}
	}
}
