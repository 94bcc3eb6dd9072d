package net

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// tcpKeepAlive is the keep-alive period of gossip connections, inbound and
// outbound.
const tcpKeepAlive = 30 * time.Second

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
)

// TCPStreamLayer carries node-to-node gossip over plain TCP connections.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// ListenTCP binds bindAddr. Other nodes reach this one on advertise, or on
// the bound address when advertise is empty, which must then be a concrete
// IP.
func ListenTCP(bindAddr, advertise string) (*TCPStreamLayer, error) {
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	if err := checkAdvertise(advertise, list.Addr()); err != nil {
		list.Close()
		return nil, err
	}

	return &TCPStreamLayer{
		advertise: advertise,
		listener:  list.(*net.TCPListener),
	}, nil
}

func checkAdvertise(advertise string, bound net.Addr) error {
	addr := bound
	if advertise != "" {
		resolved, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return err
		}
		addr = resolved
	}

	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return errNotTCP
	}
	if tcpAddr.IP.IsUnspecified() {
		return errNotAdvertisable
	}
	return nil
}

// Dial opens an outbound gossip connection.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{
		Timeout:   timeout,
		KeepAlive: tcpKeepAlive,
	}
	return dialer.Dial("tcp", address)
}

// Accept waits for the next inbound connection. A connection whose
// keep-alive cannot be set is closed and reported as an error; the listener
// stays open.
func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	conn, err := t.listener.AcceptTCP()
	if err != nil {
		return nil, err
	}
	if err := keepAlive(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connection from %s: %v", conn.RemoteAddr(), err)
	}
	return conn, nil
}

func keepAlive(conn *net.TCPConn) error {
	if err := conn.SetKeepAlive(true); err != nil {
		return err
	}
	return conn.SetKeepAlivePeriod(tcpKeepAlive)
}

// Close stops accepting connections.
func (t *TCPStreamLayer) Close() error {
	return t.listener.Close()
}

// Addr is the bound address.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr is the address other nodes should list for this one in
// peers.json.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}

// NewTCPTransport listens on bindAddr and returns the NetworkTransport of
// node localID. Peers are located through resolver.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	localID string,
	resolver Resolver,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := ListenTCP(bindAddr, advertise)
	if err != nil {
		return nil, err
	}
	return NewNetworkTransport(stream, localID, resolver, maxPool, timeout, logger), nil
}
