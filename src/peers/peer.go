package peers

// Peer is a member of the cluster.
type Peer struct {
	ID      string `json:"id"`
	NetAddr string `json:"net_addr,omitempty"`
}

// NewPeer ...
func NewPeer(id, netAddr string) *Peer {
	return &Peer{
		ID:      id,
		NetAddr: netAddr,
	}
}
