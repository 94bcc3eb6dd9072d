package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response *Body
	Error    error
}

// RPC encapsulates an inbound message and provides a response mechanism.
// Replies to messages this node sent earlier arrive as RPCs with a nil
// RespChan; responding to them is a no-op.
type RPC struct {
	Src      string
	Body     *Body
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both. Transports
// always hand out buffered response channels, so Respond does not block.
func (r *RPC) Respond(resp *Body, err error) {
	if r.RespChan == nil {
		return
	}
	r.RespChan <- RPCResponse{resp, err}
}
