package net

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/mosaicnetworks/murmur/src/common"
)

func TestBodyMarshalKeepsRequiredFields(t *testing.T) {
	cases := []struct {
		body     Body
		expected string
	}{
		{
			Body{Type: TypeReadOk, InReplyTo: 3},
			`{"type":"read_ok","in_reply_to":3,"messages":[]}`,
		},
		{
			Body{Type: TypeError, InReplyTo: 4, Code: common.Timeout, Text: "slow"},
			`{"type":"error","in_reply_to":4,"text":"slow","code":0}`,
		},
		{
			Body{Type: TypeGossip, MsgID: 2, Messages: []common.Value{common.IntValue(1)}},
			`{"type":"gossip","msg_id":2,"messages":[1]}`,
		},
		{
			Body{Type: TypeBroadcastOk, InReplyTo: 9},
			`{"type":"broadcast_ok","in_reply_to":9}`,
		},
	}

	for _, c := range cases {
		out, err := json.Marshal(c.body)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if string(out) != c.expected {
			t.Fatalf("expected %s, got %s", c.expected, out)
		}
	}
}

func TestMessageDecode(t *testing.T) {
	in := `{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":1,"message":{"b":2,"a":1}}}`

	var msg Message
	if err := json.Unmarshal([]byte(in), &msg); err != nil {
		t.Fatalf("err: %v", err)
	}

	if msg.Src != "c1" || msg.Dest != "n1" {
		t.Fatalf("bad envelope %#v", msg)
	}
	if msg.Body.Message == nil {
		t.Fatal("message should be set")
	}
	if *msg.Body.Message != common.MustValue(`{"a":1,"b":2}`) {
		t.Fatalf("message should be canonical, got %s", *msg.Body.Message)
	}
	if msg.Body.IsReply() {
		t.Fatal("a request is not a reply")
	}
}

func TestNewErrorBody(t *testing.T) {
	b := NewErrorBody(common.NewRPCErr(common.NotSupported, "not supported: foo"))
	if b.Code != common.NotSupported || b.Text != "not supported: foo" {
		t.Fatalf("bad error body %#v", b)
	}
	if !common.IsRPC(b.Err(), common.NotSupported) {
		t.Fatalf("Err should return the RPC error, got %v", b.Err())
	}

	b = NewErrorBody(errors.New("boom"))
	if b.Code != common.Crash {
		t.Fatalf("plain errors should be reported as crashes, got %d", b.Code)
	}
}
