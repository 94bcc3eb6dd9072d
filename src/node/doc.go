// Package node implements the reactive component of a broadcast node.
//
// A Node owns the gossip engine of one member of the cluster and drives it
// from a single goroutine. The loop waits on four sources: messages from the
// transport, requests submitted locally (by the HTTP service), the gossip
// ticker, and shutdown. Because nothing else touches the engine, the delivery
// store, the topology and the pending obligations need no locking.
//
// Messages
//
// Clients talk to a node with broadcast, read and topology requests. Nodes
// talk to each other with gossip, which carries values, and gossip_ok, which
// echoes the values received so that the sender can stop re-sending them.
// Any other type is answered with an error of code 10 (not supported); a node
// never crashes on unexpected input.
//
// Gossip
//
// Every heartbeat, the node sends each neighbour all the values it has not
// acknowledged yet, in a single message. Retries are simply the next tick:
// there are no per-message timers. A partition only delays delivery; when it
// heals, the backlog goes through in one batch per neighbour.
//
// States
//
// A node starts Waiting. It moves to Gossiping once it knows its id and the
// ids of the other nodes, either from an init message or from a call to Init
// before Run. Shutdown is final.
package node
