package peers

import "sort"

// PeerSet is the fixed set of peers forming a cluster.
type PeerSet struct {
	Peers []*Peer          `json:"peers"`
	ByID  map[string]*Peer `json:"-"`
}

// NewPeerSet creates a new PeerSet from a list of Peers. Peers are sorted by
// id; a duplicated id keeps its first entry.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByID: make(map[string]*Peer),
	}

	for _, peer := range peers {
		if _, ok := peerSet.ByID[peer.ID]; ok {
			continue
		}
		peerSet.ByID[peer.ID] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	sort.Slice(peerSet.Peers, func(i, j int) bool {
		return LessID(peerSet.Peers[i].ID, peerSet.Peers[j].ID)
	})

	return peerSet
}

// IDs returns the sorted ids of the peers.
func (ps *PeerSet) IDs() []string {
	res := make([]string, len(ps.Peers))
	for i, p := range ps.Peers {
		res[i] = p.ID
	}
	return res
}

// Addr resolves a node id to its network address.
func (ps *PeerSet) Addr(id string) (string, bool) {
	p, ok := ps.ByID[id]
	if !ok || p.NetAddr == "" {
		return "", false
	}
	return p.NetAddr, true
}

// Len returns the number of peers.
func (ps *PeerSet) Len() int {
	return len(ps.Peers)
}
