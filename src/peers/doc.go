// Package peers defines the members of a murmur cluster and the gossip graph
// that connects them.
//
// A peer is identified by a node id (n0, n1, ...). When nodes talk over TCP, a
// peer also carries the network address where it can be reached; the list of
// peers is then read from a peers.json file in the node's data directory. When
// nodes run under a harness on stdin/stdout, the ids arrive in the init
// message and addresses are irrelevant.
//
// The Topology type turns the full list of ids into the set of neighbours a
// node gossips with. The default grid layout gives every node O(sqrt(N))
// neighbours and a graph diameter of two, which bounds both the number of
// messages per broadcast and the number of hops a value needs to reach every
// node. A harness may override the computed neighbours once, before gossip
// starts.
package peers
