package conn

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/comcore-chat/comcore-server/internal/wire"
)

// Server accepts TLS connections and runs one Conn per accepted socket until shut down.
type Server struct {
	deps     Deps
	listener net.Listener
	log      zerolog.Logger

	closing chan struct{}
	once    sync.Once

	mu    sync.Mutex
	conns map[*Conn]struct{}
	wg    sync.WaitGroup
}

// Listen opens a TLS listener on addr using certFile/keyFile and wraps it as a Server.
func Listen(deps Deps, addr, certFile, keyFile string) (*Server, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	ln, err := tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return nil, err
	}
	return newServer(deps, ln), nil
}

func newServer(deps Deps, ln net.Listener) *Server {
	return &Server{
		deps:     deps,
		listener: ln,
		log:      deps.Log.With().Str("component", "conn.server").Logger(),
		closing:  make(chan struct{}),
		conns:    make(map[*Conn]struct{}),
	}
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener is closed. It blocks. Every accepted connection
// is served on its own goroutine and tracked so Shutdown can push "end" to each of them before they drain.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			s.closeListener()
		case <-s.closing:
		}
	}()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			case <-s.closing:
				s.wg.Wait()
				return nil
			default:
				return err
			}
		}

		c := New(s.deps, nc)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.Serve(ctx)
			s.mu.Lock()
			delete(s.conns, c)
			s.mu.Unlock()
		}()
	}
}

// closeListener closes the listener at most once, so Serve's own ctx-watching goroutine and an explicit Shutdown
// call never race on a double close.
func (s *Server) closeListener() {
	s.once.Do(func() {
		close(s.closing)
		_ = s.listener.Close()
	})
}

// Shutdown stops accepting new connections, pushes an "end" frame to every live connection, then closes each of
// them and waits for their goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) {
	s.closeListener()

	s.mu.Lock()
	targets := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.Push(wire.EventEnd, map[string]any{})
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown deadline exceeded with connections still draining")
	}
}
