// Package conn implements one Comcore protocol connection: the newline-delimited JSON frame transport, the
// per-connection request queue, and the login state machine that gates access to the authenticated request
// dispatcher.
package conn

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/code"
	"github.com/comcore-chat/comcore-server/internal/crypto"
	"github.com/comcore-chat/comcore-server/internal/dispatch"
	"github.com/comcore-chat/comcore-server/internal/registry"
	"github.com/comcore-chat/comcore-server/internal/store"
	"github.com/comcore-chat/comcore-server/internal/wire"
)

const sendBuffer = 64

// Deps are the process-wide collaborators every connection shares.
type Deps struct {
	Store      store.Store
	Codes      *code.Manager
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Hasher     *crypto.Hasher
	Log        zerolog.Logger
}

// Conn is one live protocol connection. It implements registry.Pusher.
type Conn struct {
	deps Deps
	nc   net.Conn
	log  zerolog.Logger

	out   chan []byte
	queue *requestQueue
	done  chan struct{}
	once  sync.Once

	mu    sync.Mutex
	state loginState
}

// New wraps an established net.Conn (already TLS-handshaken, if applicable) as a Conn. Call Serve to run it.
func New(deps Deps, nc net.Conn) *Conn {
	return &Conn{
		deps:  deps,
		nc:    nc,
		log:   deps.Log.With().Str("component", "conn").Str("remote", nc.RemoteAddr().String()).Logger(),
		out:   make(chan []byte, sendBuffer),
		queue: newRequestQueue(),
		done:  make(chan struct{}),
		state: loggedOutState(),
	}
}

// Serve runs the connection until the peer disconnects, the connection is closed, or ctx is cancelled. It blocks.
func (c *Conn) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.writeLoop() }()
	go func() { defer wg.Done(); c.readLoop() }()

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.handlerLoop(ctx)
	wg.Wait()
}

// readLoop splits inbound bytes into newline-delimited frames and pushes each non-empty line onto the request
// queue. It never blocks the handler pump: the queue is unbounded.
func (c *Conn) readLoop() {
	defer c.Close()
	r := bufio.NewReader(c.nc)
	for {
		line, err := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			c.queue.push(line)
		}
		if err != nil {
			return
		}
	}
}

// writeLoop drains the outbound channel to the socket. It exits once done is closed and the channel is drained, and
// closes the socket on exit.
func (c *Conn) writeLoop() {
	defer func() { _ = c.nc.Close() }()
	for {
		select {
		case b, ok := <-c.out:
			if !ok {
				return
			}
			_ = c.nc.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if _, err := c.nc.Write(append(b, '\n')); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				c.Close()
				return
			}
		case <-c.done:
			for {
				select {
				case b, ok := <-c.out:
					if !ok {
						return
					}
					_ = c.nc.SetWriteDeadline(time.Now().Add(10 * time.Second))
					if _, err := c.nc.Write(append(b, '\n')); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handlerLoop is the request queue's single consumer: it pops one line at a time, processes it to completion, and
// only then advances.
func (c *Conn) handlerLoop(ctx context.Context) {
	for {
		line, ok := c.queue.pop()
		if !ok {
			return
		}
		c.process(ctx, line)
	}
}

// Close tears the connection down. Safe to call more than once and from any goroutine.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.queue.close()
		c.deregisterIfLoggedIn()
	})
}

func (c *Conn) deregisterIfLoggedIn() {
	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st.kind == stateLoggedIn {
		c.deps.Registry.Logout(st.userID, c)
	}
}

// send enqueues a frame for delivery. If the connection has been cancelled the write is silently dropped.
func (c *Conn) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal outbound frame")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.out <- b:
	case <-c.done:
	default:
		c.log.Warn().Msg("send buffer full, closing connection")
		c.Close()
	}
}

// Push implements registry.Pusher: it delivers an out-of-band event frame to this connection.
func (c *Conn) Push(kind string, data any) {
	c.send(wire.Reply{Kind: kind, Data: data})
}

// ForceLogout implements registry.Pusher: the registry calls this on every other session of a user whose password
// was just reset.
func (c *Conn) ForceLogout() {
	c.mu.Lock()
	c.state = loggedOutState()
	c.mu.Unlock()
	c.send(wire.Reply{Kind: wire.EventLogout, Data: map[string]any{}})
}

func (c *Conn) getState() loginState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s loginState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
