package net

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes and clients.
type Transport interface {

	// Starts the transport listening. Listen blocks until the transport is
	// closed or its input is exhausted.
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// Send delivers body to the node identified by target without waiting
	// for an answer. The reply, if any, comes back through Consumer. Send
	// never blocks on the remote end.
	Send(target string, body *Body) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
