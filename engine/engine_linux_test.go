//go:build linux
// +build linux

// File: engine/engine_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Full engine lifecycle tests over real sockets.

package engine_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momentics/tofu/addr"
	"github.com/momentics/tofu/api"
	"github.com/momentics/tofu/engine"
	"github.com/momentics/tofu/internal/logging"
	"github.com/momentics/tofu/protocol"
)

func TestMain(m *testing.M) {
	logging.ConfigureTests()
	os.Exit(m.Run())
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func TestChannelNumbering(t *testing.T) {
	e := newEngine(t)
	g, err := e.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}

	// Monotonic from 1; 0 stays reserved.
	for want := uint16(1); want <= 3; want++ {
		n, err := g.OpenChannel()
		if err != nil {
			t.Fatal(err)
		}
		if n != want {
			t.Fatalf("OpenChannel = %d, want %d", n, want)
		}
	}

	// Released numbers are reused before fresh ones.
	if err := g.CloseChannel(2); err != nil {
		t.Fatal(err)
	}
	if n, err := g.OpenChannel(); err != nil || n != 2 {
		t.Fatalf("reuse: got %d, %v", n, err)
	}

	// Claimed numbers conflict and are skipped by allocation.
	if err := g.Claim(4); err != nil {
		t.Fatal(err)
	}
	if err := g.Claim(4); !errors.Is(err, api.ErrChannelTaken) {
		t.Fatalf("double claim: %v", err)
	}
	if err := g.Claim(0); err == nil {
		t.Error("claim of reserved channel 0 accepted")
	}
	if n, err := g.OpenChannel(); err != nil || n != 5 {
		t.Fatalf("allocation did not skip claimed number: got %d, %v", n, err)
	}

	if err := g.CloseChannel(9); err == nil {
		t.Error("releasing an unowned channel succeeded")
	}
}

func TestPostValidationRetainsOwnership(t *testing.T) {
	e := newEngine(t)
	g, err := e.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}

	var empty protocol.Handle
	if err := g.Post(&empty); !errors.Is(err, api.ErrEmptyHandle) {
		t.Fatalf("empty handle: %v", err)
	}

	h, err := e.GetMessage(api.StrategyAlways)
	if err != nil {
		t.Fatal(err)
	}
	// Opcode zero is invalid; the caller keeps the message for cleanup.
	if err := g.Post(&h); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("invalid opcode: %v", err)
	}
	if h.IsEmpty() {
		t.Fatal("handle emptied although post failed")
	}

	// Valid opcode but no connection anywhere.
	h.Msg().Opcode = protocol.OpSignal
	if err := g.Post(&h); !errors.Is(err, api.ErrNotConnected) {
		t.Fatalf("no connection: %v", err)
	}
	if h.IsEmpty() {
		t.Fatal("handle emptied although post failed")
	}
	if err := e.PutMessage(&h); err != nil {
		t.Fatal(err)
	}
	if !h.IsEmpty() {
		t.Fatal("PutMessage left handle non-empty")
	}
}

func TestUnixSocketRequestResponse(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "engine.sock")
	srv := newEngine(t)
	cli := newEngine(t)

	sa, err := addr.UnixServer(sock)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := srv.Listen(sa); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	srvGroup, err := srv.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}
	if err := srvGroup.Claim(5); err != nil {
		t.Fatal(err)
	}

	ca, err := addr.UnixClient(sock)
	if err != nil {
		t.Fatal(err)
	}
	connID, err := cli.Dial(ca)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cliGroup, err := cli.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}
	cliGroup.BindConn(connID)
	if err := cliGroup.Claim(5); err != nil {
		t.Fatal(err)
	}

	// Client side: REQUEST on the peer-agreed channel.
	h, err := cli.GetMessage(api.StrategyAlways)
	if err != nil {
		t.Fatal(err)
	}
	m := h.Msg()
	m.Opcode = protocol.OpRequest
	m.Channel = 5
	m.ID = 77
	if err := m.AddHeader("x", "1"); err != nil {
		t.Fatal(err)
	}
	m.SetBody([]byte("hi"))
	if err := cliGroup.Post(&h); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if !h.IsEmpty() {
		t.Fatal("successful post left the handle non-empty")
	}

	// Server side: receive, verify, reply on the arrival connection.
	req, err := srvGroup.WaitReceive(2 * time.Second)
	if err != nil {
		t.Fatalf("server WaitReceive: %v", err)
	}
	rm := req.Msg()
	if rm.Opcode != protocol.OpRequest || rm.Channel != 5 || rm.ID != 77 {
		t.Errorf("request fields: %+v", rm)
	}
	if v, ok := rm.Header("x"); !ok || v != "1" {
		t.Error("request text header lost")
	}
	if !bytes.Equal(rm.Body(), []byte("hi")) {
		t.Errorf("request body: %q", rm.Body())
	}

	resp, err := srv.GetMessage(api.StrategyAlways)
	if err != nil {
		t.Fatal(err)
	}
	pm := resp.Msg()
	pm.Opcode = protocol.OpResponse
	pm.Channel = rm.Channel
	pm.ID = rm.ID
	pm.Conn = rm.Conn // reply where the request came from
	pm.SetBody([]byte("ok"))
	if err := srvGroup.Post(&resp); err != nil {
		t.Fatalf("reply Post: %v", err)
	}
	if err := srv.PutMessage(&req); err != nil {
		t.Fatal(err)
	}

	// Client side: the response arrives on channel 5.
	got, err := cliGroup.WaitReceive(2 * time.Second)
	if err != nil {
		t.Fatalf("client WaitReceive: %v", err)
	}
	gm := got.Msg()
	if gm.Opcode != protocol.OpResponse || gm.ID != 77 || !bytes.Equal(gm.Body(), []byte("ok")) {
		t.Errorf("response fields: %+v", gm)
	}
	if err := cli.PutMessage(&got); err != nil {
		t.Fatal(err)
	}
}

func TestTCPSubmissionOrderPreserved(t *testing.T) {
	srv := newEngine(t)
	cli := newEngine(t)

	sa, err := addr.TCPServer("127.0.0.1", 0)
	if err != nil {
		t.Fatal(err)
	}
	_, eff, err := srv.Listen(sa)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	srvGroup, err := srv.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}
	if err := srvGroup.Claim(9); err != nil {
		t.Fatal(err)
	}

	ca, err := addr.TCPClient("127.0.0.1", eff.Port)
	if err != nil {
		t.Fatal(err)
	}
	connID, err := cli.Dial(ca)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	cliGroup, err := cli.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}
	cliGroup.BindConn(connID)
	if err := cliGroup.Claim(9); err != nil {
		t.Fatal(err)
	}

	const n = 20
	for i := 0; i < n; i++ {
		h, err := cli.GetMessage(api.StrategyAlways)
		if err != nil {
			t.Fatal(err)
		}
		h.Msg().Opcode = protocol.OpSignal
		h.Msg().Channel = 9
		h.Msg().ID = uint64(i)
		if err := cliGroup.Post(&h); err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		got, err := srvGroup.WaitReceive(2 * time.Second)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		if got.Msg().ID != uint64(i) {
			t.Fatalf("receive %d has ID %d, wire order lost", i, got.Msg().ID)
		}
		if err := srv.PutMessage(&got); err != nil {
			t.Fatal(err)
		}
	}
}

func TestShutdownWakesBlockedReceiver(t *testing.T) {
	e := newEngine(t)
	g, err := e.CreateGroup()
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := g.WaitReceive(-1)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	if err := e.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, api.ErrMailboxClosed) {
			t.Fatalf("blocked receiver got %v, want ErrMailboxClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked receiver not woken by shutdown")
	}

	// Post after shutdown fails and ownership stays with the caller.
	h := protocol.Wrap(protocol.NewMessage())
	h.Msg().Opcode = protocol.OpSignal
	if err := g.Post(&h); !errors.Is(err, api.ErrEngineDown) {
		t.Fatalf("post after shutdown: %v", err)
	}
	if h.IsEmpty() {
		t.Fatal("handle emptied by failed post")
	}
	if err := e.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestDialRequiresStart(t *testing.T) {
	e, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = e.Shutdown() })
	if _, err := e.Dial(addr.Address{Net: addr.Unix, Role: addr.Client, Path: "/nope"}); err == nil {
		t.Fatal("Dial before Start succeeded")
	}
}
