// Package rfb implements an RFB (VNC) server: it takes a pixel surface
// owned by a host application and exposes it to one or more concurrent
// VNC clients, handling the handshake, authentication, framebuffer
// updates and input events. The host application is responsible for
// drawing into the surface and draining input events; this package
// never touches pixels outside a caller-supplied lock.
package rfb

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Server is the library's single entry point: an explicit handle
// owning the hub, the event queue, and the listening socket, with no
// process-wide state outside it (SPEC_FULL.md §9).
type Server struct {
	config      ServerConfig
	hub         *framebufferHub
	events      *eventQueue
	surfaceLock sync.Locker
	log         *logrus.Entry
	limiter     *rate.Limiter

	mu       sync.Mutex
	listener net.Listener
	conns    map[*connection]struct{}
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewServer builds a Server for the given surface, bound to host:port,
// guarded by surfaceLock while pixels are read. ConfigurationError is
// returned synchronously; nothing is listened on yet.
func NewServer(surface Surface, host string, port int, surfaceLock sync.Locker, opts ...Option) (*Server, error) {
	if surfaceLock == nil {
		return nil, fmt.Errorf("%w: surfaceLock must not be nil", ErrConfiguration)
	}
	cfg := defaultConfig(host, port)
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		hub:         newFramebufferHub(surface, cfg.DesktopName),
		events:      newEventQueue(cfg.EventQueueCapacity),
		surfaceLock: surfaceLock,
		log:         serverLogger(cfg.Logger),
		conns:       make(map[*connection]struct{}),
		stopped:     make(chan struct{}),
	}
	if cfg.AcceptRateLimit > 0 {
		s.limiter = rate.NewLimiter(cfg.AcceptRateLimit, cfg.AcceptBurst)
	}
	return s, nil
}

// ChangeSurface swaps in a new surface and forces every connected
// client to resend in full, via a DesktopSize pseudo-rect where
// supported and full damage everywhere (SPEC_FULL.md §4.6).
func (s *Server) ChangeSurface(newSurface Surface) {
	s.hub.changeSurface(newSurface)
}

// ChangeName updates the desktop name broadcast to clients that
// support the DesktopName pseudo-encoding.
func (s *Server) ChangeName(newName string) {
	s.hub.changeName(newName)
}

// MarkDamage tells the server that rect has changed since the last
// update sent to each client. The animator must hold surfaceLock (or
// otherwise guarantee the pixels are stable) before calling this.
func (s *Server) MarkDamage(rect Rectangle) {
	s.hub.markDamage(rect)
}

// GetEvent waits up to timeout for the next input event from any
// client. A non-positive timeout polls the queue without blocking.
// ok is false if no event is available within timeout.
func (s *Server) GetEvent(timeout time.Duration) (Event, bool) {
	return s.events.get(timeout)
}

// listen opens the TCP listener if it isn't already open.
func (s *Server) listen() (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener, nil
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.config.Host, s.config.Port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	s.listener = ln
	return ln, nil
}

// ServeForever runs the accept loop on the calling goroutine until
// Stop is called, per SPEC_FULL.md §4.7's "Blocking" mode.
func (s *Server) ServeForever() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	return s.acceptLoop(ln)
}

// Daemonise spawns the accept loop on a background goroutine and
// returns immediately ("Daemonised" mode).
func (s *Server) Daemonise() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ln); err != nil {
			select {
			case <-s.stopped:
				// Expected: Stop() closed the listener.
			default:
				s.log.WithError(err).Error("accept loop terminated")
			}
		}
	}()
	return nil
}

// Start opens the listener for Poll-driven operation without blocking.
func (s *Server) Start() error {
	_, err := s.listen()
	return err
}

// Poll accepts at most one pending connection within timeout,
// spawning its connection goroutine, for callers that want to drive
// the accept loop from their own loop rather than dedicate a goroutine
// to it ("Polled" mode).
func (s *Server) Poll(timeout time.Duration) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("%w: Poll called before Start", ErrConfiguration)
	}
	type deadliner interface {
		SetDeadline(time.Time) error
	}
	if dl, ok := ln.(deadliner); ok {
		_ = dl.SetDeadline(time.Now().Add(timeout))
	}
	netConn, err := ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		select {
		case <-s.stopped:
			return nil
		default:
			return fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}
	s.spawnConnection(netConn)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		if s.limiter != nil {
			if err := s.limiter.Wait(context.Background()); err != nil {
				return nil
			}
		}
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return nil
			default:
				return fmt.Errorf("%w: %v", ErrFatal, err)
			}
		}
		s.spawnConnection(netConn)
	}
}

func (s *Server) spawnConnection(netConn net.Conn) {
	c := newConnection(s, netConn)
	s.trackConn(c)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.untrackConn(c)
		c.serve()
	}()
}

func (s *Server) trackConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrackConn(c *connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) snapshotConns() []*connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*connection, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Stop idempotently shuts the server down: it closes the listening
// socket, marks the shutdown flag, closes every live connection so
// blocked reads unwind, then waits for every goroutine it spawned to
// exit. The wait has no timeout.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			_ = ln.Close()
		}
		for _, c := range s.snapshotConns() {
			c.close()
		}
		s.wg.Wait()
	})
}
