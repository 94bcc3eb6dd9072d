package node

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/telemetry"
)

func (n *Node) processRPC(rpc net.RPC) {
	if rpc.Body == nil {
		rpc.Respond(nil, common.NewRPCErr(common.MalformedRequest, "empty body"))
		return
	}

	telemetry.RPCsTotal.WithLabelValues(n.id, rpc.Body.Type).Inc()

	if rpc.Body.IsReply() {
		n.processReply(rpc)
		return
	}

	if rpc.Body.Type == net.TypeInit {
		n.processInit(rpc)
		return
	}

	if n.getState() != Gossiping {
		n.logger.WithFields(logrus.Fields{
			"src":  rpc.Src,
			"type": rpc.Body.Type,
		}).Debug("Request before init")
		rpc.Respond(nil, common.NewRPCErr(common.TemporarilyUnavailable, "node is not initialised"))
		return
	}

	switch rpc.Body.Type {
	case net.TypeBroadcast:
		n.processBroadcast(rpc)
	case net.TypeRead:
		n.processRead(rpc)
	case net.TypeTopology:
		n.processTopology(rpc)
	case net.TypeGossip:
		n.processGossip(rpc)
	default:
		n.logger.WithFields(logrus.Fields{
			"src":  rpc.Src,
			"type": rpc.Body.Type,
		}).Warn("Unsupported message type")
		rpc.Respond(nil, common.NewRPCErr(common.NotSupported, fmt.Sprintf("not supported: %s", rpc.Body.Type)))
	}
}

func (n *Node) processInit(rpc net.RPC) {
	cmd := rpc.Body

	n.logger.WithFields(logrus.Fields{
		"node_id":  cmd.NodeID,
		"node_ids": cmd.NodeIDs,
	}).Debug("process Init")

	if err := n.init(cmd.NodeID, cmd.NodeIDs); err != nil {
		n.logger.WithError(err).Warn("Init")
		rpc.Respond(nil, err)
		return
	}

	rpc.Respond(&net.Body{Type: net.TypeInitOk}, nil)
}

func (n *Node) processBroadcast(rpc net.RPC) {
	cmd := rpc.Body

	if cmd.Message == nil {
		rpc.Respond(nil, common.NewRPCErr(common.MalformedRequest, "broadcast requires a message"))
		return
	}

	isNew := n.core.Broadcast(*cmd.Message)

	n.logger.WithFields(logrus.Fields{
		"src":     rpc.Src,
		"message": cmd.Message.String(),
		"new":     isNew,
	}).Debug("process Broadcast")

	if isNew {
		n.updateGauges()
	}

	rpc.Respond(&net.Body{Type: net.TypeBroadcastOk}, nil)
}

func (n *Node) processRead(rpc net.RPC) {
	rpc.Respond(&net.Body{
		Type:     net.TypeReadOk,
		Messages: n.core.Read(),
	}, nil)
}

func (n *Node) processTopology(rpc net.RPC) {
	cmd := rpc.Body

	if !n.conf.AcceptTopology {
		n.logger.WithField("neighbors", n.core.Neighbors()).Debug("Ignoring topology, keeping computed neighbours")
		rpc.Respond(&net.Body{Type: net.TypeTopologyOk}, nil)
		return
	}

	added, ignored, err := n.core.Override(cmd.Topology)

	if len(ignored) > 0 {
		n.logger.WithField("ignored", ignored).Warn("Topology names unknown nodes")
	}

	if err != nil {
		n.logger.WithError(err).Warn("Topology override rejected")
	} else {
		n.logger.WithFields(logrus.Fields{
			"neighbors": n.core.Neighbors(),
			"added":     added,
		}).Info("Topology override applied")
		n.updateGauges()
	}

	// the override is best effort: the client contract is always topology_ok
	rpc.Respond(&net.Body{Type: net.TypeTopologyOk}, nil)
}

func (n *Node) processGossip(rpc net.RPC) {
	cmd := rpc.Body

	newly := n.core.Gossip(rpc.Src, cmd.Messages)
	if len(newly) > 0 {
		n.updateGauges()
	}

	rpc.Respond(&net.Body{
		Type:     net.TypeGossipOk,
		Messages: cmd.Messages,
	}, nil)
}

// processReply handles answers to messages this node sent.
func (n *Node) processReply(rpc net.RPC) {
	cmd := rpc.Body

	switch cmd.Type {
	case net.TypeGossipOk:
		if n.core == nil {
			return
		}
		cleared := n.core.Ack(rpc.Src, cmd.Messages)
		n.acksReceived += cleared
		telemetry.AcksReceived.WithLabelValues(n.id).Add(float64(cleared))
	case net.TypeError:
		n.logger.WithFields(logrus.Fields{
			"src":         rpc.Src,
			"in_reply_to": cmd.InReplyTo,
			"error":       cmd.Err(),
		}).Debug("Error reply")
	default:
		n.logger.WithFields(logrus.Fields{
			"src":  rpc.Src,
			"type": cmd.Type,
		}).Debug("Ignoring reply")
	}
}
