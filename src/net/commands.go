package net

import (
	"encoding/json"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/common"
)

// Body types understood by a node. Every request type has a matching reply
// type with the "_ok" suffix.
const (
	TypeInit        = "init"
	TypeInitOk      = "init_ok"
	TypeBroadcast   = "broadcast"
	TypeBroadcastOk = "broadcast_ok"
	TypeRead        = "read"
	TypeReadOk      = "read_ok"
	TypeTopology    = "topology"
	TypeTopologyOk  = "topology_ok"
	TypeGossip      = "gossip"
	TypeGossipOk    = "gossip_ok"
	TypeError       = "error"
)

// Message is the envelope exchanged between nodes and clients. One Message is
// one line on the wire.
type Message struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
	Body Body   `json:"body"`
}

// Body is the payload of a Message. Which fields are set depends on Type.
type Body struct {
	Type      string `json:"type"`
	MsgID     int    `json:"msg_id,omitempty"`
	InReplyTo int    `json:"in_reply_to,omitempty"`

	// init
	NodeID  string   `json:"node_id,omitempty"`
	NodeIDs []string `json:"node_ids,omitempty"`

	// broadcast
	Message *common.Value `json:"message,omitempty"`

	// read_ok, gossip, gossip_ok
	Messages []common.Value `json:"messages,omitempty"`

	// topology
	Topology map[string][]string `json:"topology,omitempty"`

	// error
	Code common.RPCErrCode `json:"code,omitempty"`
	Text string            `json:"text,omitempty"`
}

// MarshalJSON keeps the fields that the protocol requires even when they hold
// their zero value: the code of an error, which is 0 for a timeout, and the
// messages of read and gossip bodies, which may be empty.
func (b Body) MarshalJSON() ([]byte, error) {
	type wire Body

	switch b.Type {
	case TypeError:
		return json.Marshal(struct {
			wire
			Code common.RPCErrCode `json:"code"`
		}{wire(b), b.Code})
	case TypeReadOk, TypeGossip, TypeGossipOk:
		msgs := b.Messages
		if msgs == nil {
			msgs = []common.Value{}
		}
		return json.Marshal(struct {
			wire
			Messages []common.Value `json:"messages"`
		}{wire(b), msgs})
	default:
		return json.Marshal(wire(b))
	}
}

// IsReply reports whether the body answers an earlier request.
func (b *Body) IsReply() bool {
	return b.InReplyTo != 0
}

// Err returns the error carried by an error body, or nil.
func (b *Body) Err() error {
	if b.Type != TypeError {
		return nil
	}
	return common.NewRPCErr(b.Code, b.Text)
}

// NewErrorBody converts err into an error body. Errors that are not RPCErr
// are reported as crashes.
func NewErrorBody(err error) *Body {
	if rpcErr, ok := err.(common.RPCErr); ok {
		return &Body{
			Type: TypeError,
			Code: rpcErr.Code(),
			Text: rpcErr.Text(),
		}
	}
	return &Body{
		Type: TypeError,
		Code: common.Crash,
		Text: err.Error(),
	}
}

// NewGossipBody returns a gossip request carrying values.
func NewGossipBody(values []common.Value) *Body {
	return &Body{
		Type:     TypeGossip,
		Messages: values,
	}
}

// NewBroadcastBody returns a broadcast request for v.
func NewBroadcastBody(v common.Value) *Body {
	return &Body{
		Type:    TypeBroadcast,
		Message: &v,
	}
}

// replyTo builds the body answering req from what the node responded. It
// returns nil when there is nothing to send back.
func replyTo(req *Body, resp RPCResponse) *Body {
	var out *Body
	switch {
	case resp.Error != nil:
		out = NewErrorBody(resp.Error)
	case resp.Response != nil:
		cp := *resp.Response
		out = &cp
	default:
		return nil
	}
	out.InReplyTo = req.MsgID
	return out
}

// timeoutBody is sent when the node did not answer a request in time.
func timeoutBody(req *Body) *Body {
	return &Body{
		Type:      TypeError,
		InReplyTo: req.MsgID,
		Code:      common.Timeout,
		Text:      fmt.Sprintf("%s timed out", req.Type),
	}
}
