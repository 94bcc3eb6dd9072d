// Package net implements the transports that carry messages between nodes
// and their clients.
//
// Every message is an envelope with a source, a destination and a body, in
// the JSON format used by the Maelstrom workbench:
//
//	{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":1,"message":5}}
//
// Transports are one-way: Send hands a body to the transport and returns
// without waiting. Inbound messages are delivered on the Consumer channel as
// RPCs. A request carries a response channel; whatever the node responds is
// sent back to the source with in_reply_to set. A reply carries none.
//
// There are three implementations of the Transport interface:
//
// - Inmem: in-memory routing between nodes of the same process, with
// Connect and Disconnect to create and heal partitions. Used in tests.
//
// - Stdio: line-delimited JSON over a reader and a writer. This is how a node
// runs under the Maelstrom harness, which owns the routing.
//
// - TCP: a NetworkTransport over a TCP stream layer. Node ids are resolved to
// addresses through a Resolver, usually the peer set read from peers.json.
package net
