package conn

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/code"
	"github.com/comcore-chat/comcore-server/internal/dispatch"
	"github.com/comcore-chat/comcore-server/internal/registry"
	"github.com/comcore-chat/comcore-server/internal/store/memory"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	store := memory.New()
	return Deps{
		Store:      store,
		Codes:      code.New(time.Hour, 5, newFakeSender(), zerolog.Nop()),
		Registry:   registry.New(),
		Dispatcher: dispatch.New(store, 50, t.TempDir(), 10*1024*1024),
		Hasher:     testHasher(),
		Log:        zerolog.Nop(),
	}
}

func TestServerShutdownPushesEndToLiveConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := newServer(testDeps(t), ln)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	client, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	reader := bufio.NewReader(client)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read end frame: %v", err)
	}
	var reply wire.Reply
	if err := json.Unmarshal([]byte(line), &reply); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if reply.Kind != wire.EventEnd {
		t.Fatalf("kind = %q, want %q", reply.Kind, wire.EventEnd)
	}

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve never returned after Shutdown")
	}
}
