package peers

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"
)

func TestJSONPeers(t *testing.T) {
	// Create a test dir
	dir, err := ioutil.TempDir("", "murmur")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	// Create the store
	store := NewJSONPeers(dir)

	// Try a read, should fail
	if _, err := store.PeerSet(); err == nil {
		t.Fatal("reading a missing peers.json should fail")
	}

	peers := []*Peer{
		NewPeer("n10", "127.0.0.1:1347"),
		NewPeer("n2", "127.0.0.1:1339"),
		NewPeer("n1", "127.0.0.1:1338"),
		NewPeer("n2", "127.0.0.1:9999"),
	}

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !reflect.DeepEqual([]string{"n1", "n2", "n10"}, peerSet.IDs()) {
		t.Fatalf("ids should be sorted and unique, got %v", peerSet.IDs())
	}

	addr, ok := peerSet.Addr("n2")
	if !ok || addr != "127.0.0.1:1339" {
		t.Fatalf("n2 should keep its first address, got %q", addr)
	}

	if _, ok := peerSet.Addr("n7"); ok {
		t.Fatal("n7 is not a peer")
	}

	if peerSet.Len() != 3 {
		t.Fatalf("expected 3 peers, got %d", peerSet.Len())
	}
}

func TestJSONPeersMissingID(t *testing.T) {
	dir, err := ioutil.TempDir("", "murmur")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeers(dir)

	if err := ioutil.WriteFile(store.Path(), []byte(`[{"net_addr":"127.0.0.1:1337"}]`), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	if _, err := store.PeerSet(); err == nil {
		t.Fatal("a peer without an id should be rejected")
	}
}

func TestPeerSetNoAddr(t *testing.T) {
	ps := NewPeerSet([]*Peer{NewPeer("n0", "")})

	if _, ok := ps.Addr("n0"); ok {
		t.Fatal("a peer without an address should not resolve")
	}
}
