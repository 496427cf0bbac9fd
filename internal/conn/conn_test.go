package conn

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/code"
	"github.com/comcore-chat/comcore-server/internal/crypto"
	"github.com/comcore-chat/comcore-server/internal/dispatch"
	"github.com/comcore-chat/comcore-server/internal/registry"
	"github.com/comcore-chat/comcore-server/internal/store/memory"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

func testHasher() *crypto.Hasher {
	return crypto.NewHasher(crypto.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

// fakeSender records the last code sent per email instead of delivering it anywhere.
type fakeSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newFakeSender() *fakeSender { return &fakeSender{codes: make(map[string]string)} }

func (s *fakeSender) SendCode(email string, kind code.Kind, c string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = c
	return nil
}

func (s *fakeSender) codeFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type testHarness struct {
	t       *testing.T
	conn    *Conn
	client  net.Conn
	reader  *bufio.Reader
	sender  *fakeSender
	reg     *registry.Registry
	store   *memory.Store
	cancel  context.CancelFunc
}

func newTestConn(t *testing.T) *testHarness {
	t.Helper()
	client, server := net.Pipe()

	sender := newFakeSender()
	store := memory.New()
	deps := Deps{
		Store:      store,
		Codes:      code.New(time.Hour, 5, sender, zerolog.Nop()),
		Registry:   registry.New(),
		Dispatcher: dispatch.New(store, 50, t.TempDir(), 10*1024*1024),
		Hasher:     testHasher(),
		Log:        zerolog.Nop(),
	}

	c := New(deps, server)
	ctx, cancel := context.WithCancel(context.Background())

	h := &testHarness{
		t:      t,
		conn:   c,
		client: client,
		reader: bufio.NewReader(client),
		sender: sender,
		reg:    deps.Registry,
		store:  store,
		cancel: cancel,
	}
	go c.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		_ = client.Close()
	})
	return h
}

func (h *testHarness) send(kind string, data any) {
	h.t.Helper()
	d, err := json.Marshal(data)
	if err != nil {
		h.t.Fatalf("marshal request: %v", err)
	}
	frame := wire.Frame{Kind: kind, Data: d}
	b, err := json.Marshal(frame)
	if err != nil {
		h.t.Fatalf("marshal frame: %v", err)
	}
	if _, err := h.client.Write(append(b, '\n')); err != nil {
		h.t.Fatalf("write request: %v", err)
	}
}

func (h *testHarness) recv() wire.Reply {
	h.t.Helper()
	_ = h.client.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := h.reader.ReadString('\n')
	if err != nil {
		h.t.Fatalf("read reply: %v", err)
	}
	var reply wire.Reply
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		h.t.Fatalf("unmarshal reply %q: %v", line, err)
	}
	return reply
}

func TestPingEchoesPayload(t *testing.T) {
	h := newTestConn(t)
	h.send("PING", map[string]any{"nonce": "abc"})
	reply := h.recv()
	if reply.Kind != "REPLY" {
		t.Fatalf("kind = %q, want REPLY", reply.Kind)
	}
	m, ok := reply.Data.(map[string]any)
	if !ok || m["nonce"] != "abc" {
		t.Fatalf("data = %#v, want nonce echoed", reply.Data)
	}
}

func TestCreateAccountEnterCodeLogsIn(t *testing.T) {
	h := newTestConn(t)

	h.send("createAccount", map[string]any{"name": "Alice", "email": "alice@example.com", "pass": "hunter22"})
	reply := h.recv()
	if reply.Kind != "REPLY" {
		t.Fatalf("createAccount reply kind = %q, want REPLY: %#v", reply.Kind, reply.Data)
	}

	code := h.sender.codeFor("alice@example.com")
	if code == "" {
		t.Fatal("no confirmation code recorded")
	}

	h.send("enterCode", map[string]any{"code": code})
	reply = h.recv()
	if reply.Kind != "REPLY" {
		t.Fatalf("enterCode reply kind = %q, want REPLY: %#v", reply.Kind, reply.Data)
	}
	m := reply.Data.(map[string]any)
	if m["correct"] != true {
		t.Fatalf("correct = %#v, want true", m["correct"])
	}

	push := h.recv()
	if push.Kind != wire.EventLogin {
		t.Fatalf("push kind = %q, want %q", push.Kind, wire.EventLogin)
	}

	if !h.reg.Online(h.conn.getState().userID) {
		t.Fatal("registry does not show the user online after login")
	}
}

func TestUnrecognizedKindWhileLoggedOutIsUnauthorized(t *testing.T) {
	h := newTestConn(t)
	h.send("sendMessage", map[string]any{})
	reply := h.recv()
	if reply.Kind != "ERROR" {
		t.Fatalf("kind = %q, want ERROR", reply.Kind)
	}
}

func TestLoginWrongPasswordReportsInvalidPassword(t *testing.T) {
	h := newTestConn(t)

	h.send("createAccount", map[string]any{"name": "Bob", "email": "bob@example.com", "pass": "correcthorse"})
	h.recv()
	code := h.sender.codeFor("bob@example.com")
	h.send("enterCode", map[string]any{"code": code})
	h.recv() // REPLY correct:true
	h.recv() // login push

	h.send("logout", map[string]any{})
	h.recv()

	h.send("login", map[string]any{"email": "bob@example.com", "pass": "wrongpass"})
	reply := h.recv()
	m := reply.Data.(map[string]any)
	if m["status"] != wire.StatusInvalidPass {
		t.Fatalf("status = %#v, want %q", m["status"], wire.StatusInvalidPass)
	}
}

func TestRequestQueueOrdersPopsFIFO(t *testing.T) {
	q := newRequestQueue()
	q.push("first")
	q.push("second")

	line, ok := q.pop()
	if !ok || line != "first" {
		t.Fatalf("pop() = (%q, %v), want (first, true)", line, ok)
	}
	line, ok = q.pop()
	if !ok || line != "second" {
		t.Fatalf("pop() = (%q, %v), want (second, true)", line, ok)
	}
}

func TestRequestQueuePopBlocksUntilPush(t *testing.T) {
	q := newRequestQueue()
	done := make(chan string, 1)
	go func() {
		line, ok := q.pop()
		if !ok {
			done <- ""
			return
		}
		done <- line
	}()

	select {
	case <-done:
		t.Fatal("pop returned before any push")
	case <-time.After(50 * time.Millisecond):
	}

	q.push("late")
	select {
	case line := <-done:
		if line != "late" {
			t.Fatalf("line = %q, want late", line)
		}
	case <-time.After(time.Second):
		t.Fatal("pop never returned after push")
	}
}

func TestRequestQueueCloseUnblocksPop(t *testing.T) {
	q := newRequestQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("pop() ok = true after close, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("pop never returned after close")
	}
}
