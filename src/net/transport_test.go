package net

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
)

// respond answers every gossip on trans with gossip_ok until done closes.
func respond(trans Transport, done <-chan struct{}) {
	for {
		select {
		case rpc := <-trans.Consumer():
			if rpc.Body.Type == TypeGossip {
				rpc.Respond(&Body{Type: TypeGossipOk, Messages: rpc.Body.Messages}, nil)
			}
		case <-done:
			return
		}
	}
}

func expectRPC(t *testing.T, trans Transport) RPC {
	t.Helper()
	select {
	case rpc := <-trans.Consumer():
		return rpc
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout")
	}
	return RPC{}
}

func TestInmemTransport_SendReply(t *testing.T) {
	_, trans1 := NewInmemTransport("n1")
	_, trans2 := NewInmemTransport("n2")
	defer trans1.Close()
	defer trans2.Close()
	ConnectAll([]*InmemTransport{trans1, trans2})

	done := make(chan struct{})
	defer close(done)
	go respond(trans2, done)

	values := []common.Value{common.IntValue(1), common.IntValue(2)}
	if err := trans1.Send("n2", NewGossipBody(values)); err != nil {
		t.Fatalf("err: %v", err)
	}

	rpc := expectRPC(t, trans1)
	if rpc.Src != "n2" {
		t.Fatalf("reply should come from n2, not %s", rpc.Src)
	}
	if rpc.Body.Type != TypeGossipOk || !rpc.Body.IsReply() {
		t.Fatalf("expected a gossip_ok reply, got %#v", rpc.Body)
	}
	if len(rpc.Body.Messages) != 2 {
		t.Fatalf("gossip_ok should echo 2 values, got %v", rpc.Body.Messages)
	}
	if rpc.RespChan != nil {
		t.Fatal("replies should not carry a response channel")
	}
}

func TestInmemTransport_Partition(t *testing.T) {
	_, trans1 := NewInmemTransport("n1")
	_, trans2 := NewInmemTransport("n2")
	defer trans1.Close()
	defer trans2.Close()
	ConnectAll([]*InmemTransport{trans1, trans2})

	Partition([]*InmemTransport{trans1}, []*InmemTransport{trans2})

	if err := trans1.Send("n2", NewGossipBody(nil)); err == nil {
		t.Fatal("Send across a partition should fail")
	}

	// only the reverse link is cut: the request arrives, the reply is lost
	trans1.Connect("n2", trans2)

	if err := trans1.Send("n2", NewGossipBody([]common.Value{common.IntValue(1)})); err != nil {
		t.Fatalf("err: %v", err)
	}
	rpc := expectRPC(t, trans2)
	rpc.Respond(&Body{Type: TypeGossipOk, Messages: rpc.Body.Messages}, nil)

	select {
	case r := <-trans1.Consumer():
		t.Fatalf("reply crossed a cut link: %#v", r.Body)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestInmemTransport_Call(t *testing.T) {
	_, trans := NewInmemTransport("n1")
	defer trans.Close()

	go func() {
		rpc := <-trans.Consumer()
		if rpc.Src != "c1" {
			rpc.Respond(nil, common.NewRPCErr(common.Crash, "bad src"))
			return
		}
		rpc.Respond(nil, common.NewRPCErr(common.NotSupported, "not supported: echo"))
	}()

	_, err := trans.Call("c1", &Body{Type: "echo"}, time.Second)
	if !common.IsRPC(err, common.NotSupported) {
		t.Fatalf("expected a NotSupported error, got %v", err)
	}
}

func TestStdioTransport_RoundTrip(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	trans := NewStdioTransport(inR, outW, time.Second, common.NewTestEntry(t, "stdio"))
	defer trans.Close()
	go trans.Listen()

	out := bufio.NewScanner(outR)
	readLine := func() Message {
		t.Helper()
		lines := make(chan string, 1)
		go func() {
			if out.Scan() {
				lines <- out.Text()
			}
		}()
		select {
		case l := <-lines:
			var msg Message
			if err := json.Unmarshal([]byte(l), &msg); err != nil {
				t.Fatalf("err: %v (%s)", err, l)
			}
			return msg
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout")
		}
		return Message{}
	}

	go func() {
		io.WriteString(inW, `{"src":"c0","dest":"n3","body":{"type":"init","msg_id":1,"node_id":"n3","node_ids":["n1","n2","n3"]}}`+"\n")
	}()

	rpc := expectRPC(t, trans)
	if rpc.Body.Type != TypeInit || rpc.Body.NodeID != "n3" || len(rpc.Body.NodeIDs) != 3 {
		t.Fatalf("bad init %#v", rpc.Body)
	}
	rpc.Respond(&Body{Type: TypeInitOk}, nil)

	msg := readLine()
	if msg.Src != "n3" || msg.Dest != "c0" {
		t.Fatalf("bad reply envelope %#v", msg)
	}
	if msg.Body.Type != TypeInitOk || msg.Body.InReplyTo != 1 {
		t.Fatalf("bad reply %#v", msg.Body)
	}

	if trans.LocalAddr() != "n3" {
		t.Fatalf("local addr should be n3, not %s", trans.LocalAddr())
	}

	// outbound gossip
	go func() {
		if err := trans.Send("n1", NewGossipBody([]common.Value{common.IntValue(4)})); err != nil {
			t.Errorf("err: %v", err)
		}
	}()
	msg = readLine()
	if msg.Dest != "n1" || msg.Body.Type != TypeGossip || msg.Body.MsgID == 0 {
		t.Fatalf("bad gossip %#v", msg)
	}

	// malformed input is answered, not fatal
	go func() {
		io.WriteString(inW, `{"src":"c1","dest":"n3","body":{"type":"broadcast","msg_id":8,"node_ids":"x"}}`+"\n")
	}()
	msg = readLine()
	if msg.Body.Type != TypeError || msg.Body.Code != common.MalformedRequest || msg.Body.InReplyTo != 8 {
		t.Fatalf("expected a malformed request error, got %#v", msg.Body)
	}

	go func() {
		io.WriteString(inW, `{"src":"c1","dest":"n3","body":{"type":"read","msg_id":7}}`+"\n")
	}()
	rpc = expectRPC(t, trans)
	if rpc.Body.Type != TypeRead {
		t.Fatalf("expected read, got %s", rpc.Body.Type)
	}
	rpc.Respond(&Body{Type: TypeReadOk}, nil)

	msg = readLine()
	if msg.Body.Type != TypeReadOk || msg.Body.InReplyTo != 7 {
		t.Fatalf("bad read_ok %#v", msg.Body)
	}
}

func TestStdioTransport_GarbageLine(t *testing.T) {
	in := strings.NewReader("not json\n\n" + `{"src":"n2","dest":"n1","body":{"type":"gossip_ok","in_reply_to":3,"messages":[1]}}` + "\n")
	var out strings.Builder

	trans := NewStdioTransport(in, &out, time.Second, common.NewTestEntry(t, "stdio"))
	defer trans.Close()
	go trans.Listen()

	rpc := expectRPC(t, trans)
	if rpc.Src != "n2" || rpc.Body.Type != TypeGossipOk || rpc.RespChan != nil {
		t.Fatalf("bad rpc %#v", rpc)
	}
}

type staticResolver map[string]string

func (r staticResolver) Addr(id string) (string, bool) {
	a, ok := r[id]
	return a, ok
}

func TestTCPTransport_SendReply(t *testing.T) {
	resolver := staticResolver{}

	trans1, err := NewTCPTransport("127.0.0.1:0", "", "n1", resolver, 2, time.Second, common.NewTestEntry(t, "n1"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()

	trans2, err := NewTCPTransport("127.0.0.1:0", "", "n2", resolver, 2, time.Second, common.NewTestEntry(t, "n2"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()
	go trans2.Listen()

	resolver["n1"] = trans1.AdvertiseAddr()
	resolver["n2"] = trans2.AdvertiseAddr()

	done := make(chan struct{})
	defer close(done)
	go respond(trans2, done)

	if err := trans1.Send("n2", NewGossipBody([]common.Value{common.IntValue(5)})); err != nil {
		t.Fatalf("err: %v", err)
	}

	rpc := expectRPC(t, trans1)
	if rpc.Src != "n2" || rpc.Body.Type != TypeGossipOk {
		t.Fatalf("bad reply %#v", rpc)
	}
	if len(rpc.Body.Messages) != 1 || rpc.Body.Messages[0] != common.IntValue(5) {
		t.Fatalf("gossip_ok should echo [5], got %v", rpc.Body.Messages)
	}

	if err := trans1.Send("n9", NewGossipBody(nil)); err == nil {
		t.Fatal("Send to an unknown node should fail")
	}
}

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", "n1", staticResolver{}, 1, 0, common.NewTestEntry(t, "n1"))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", "n1", staticResolver{}, 1, 0, common.NewTestEntry(t, "n1"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
	if trans.LocalAddr() != "n1" {
		t.Fatalf("bad: %v", trans.LocalAddr())
	}
}
