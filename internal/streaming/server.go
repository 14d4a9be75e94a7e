package streaming

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/AlexxIT/go2rtc/pkg/rtsp"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

// Server accepts RTSP clients for the hub's mount. A client is a viewer
// from its first DESCRIBE on the mount until its connection closes.
type Server struct {
	hub    *Hub
	logger logging.Logger

	mu       sync.Mutex
	ln       net.Listener
	sessions map[*rtspSession]struct{}
	shutdown bool
	active   sync.WaitGroup
}

// NewServer returns a server for hub. Nothing listens until Start.
func NewServer(hub *Hub, logger logging.Logger) *Server {
	return &Server{
		hub:      hub,
		logger:   logger,
		sessions: make(map[*rtspSession]struct{}),
	}
}

// Start listens on addr and serves clients in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.shutdown = false
	s.mu.Unlock()

	s.logger.Info("RTSP server started", "addr", ln.Addr().String(), "mount", s.hub.Mount())
	go s.serve(ln)
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Hub returns the hub viewers attach to.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) serve(ln net.Listener) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.stopping() {
				return
			}
			s.logger.Error("Failed to accept connection", "error", err)
			continue
		}

		sess := &rtspSession{server: s, conn: rtsp.NewServer(nc), remote: nc.RemoteAddr()}
		if !s.track(sess) {
			_ = nc.Close()
			return
		}
		go func() {
			defer s.untrack(sess)
			sess.run()
		}()
	}
}

func (s *Server) stopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) track(sess *rtspSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return false
	}
	s.sessions[sess] = struct{}{}
	s.active.Add(1)
	return true
}

func (s *Server) untrack(sess *rtspSession) {
	sess.close()
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	s.active.Done()
}

// Stop closes the listener and every client, returning once each client
// has released its viewer.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	ln := s.ln
	open := make([]*rtspSession, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, sess := range open {
		_ = sess.conn.Stop()
	}
	s.active.Wait()

	s.logger.Info("RTSP server stopped")
	return err
}

// rtspSession is one client connection. release is set once the client
// has been admitted as a viewer.
type rtspSession struct {
	server  *Server
	conn    *rtsp.Conn
	remote  net.Addr
	release func()
}

func (c *rtspSession) run() {
	c.conn.Listen(c.onMessage)

	// OPTIONS, DESCRIBE, SETUP and PLAY
	if err := c.conn.Accept(); err != nil {
		c.logEnd("accept", err)
		return
	}
	// Blocks while media flows.
	if err := c.conn.Handle(); err != nil {
		c.logEnd("handle", err)
	}
}

func (c *rtspSession) onMessage(msg any) {
	log := c.server.logger
	switch msg {
	case rtsp.MethodAnnounce:
		log.Warn("Rejecting RTSP publisher", "remote", c.remote)
		_ = c.conn.Stop()

	case rtsp.MethodDescribe:
		if c.release != nil {
			return
		}
		path := ""
		if c.conn.URL != nil {
			path = c.conn.URL.Path
		}
		if !c.server.hub.Matches(path) {
			log.Debug("RTSP describe for unknown mount", "path", path)
			return
		}
		release, err := c.server.hub.Attach(c.conn)
		if err != nil {
			log.Warn("Failed to admit RTSP client", "remote", c.remote, "error", err)
			return
		}
		c.release = release
		log.Info("RTSP client connected", "remote", c.remote)
	}
}

func (c *rtspSession) close() {
	if c.release == nil {
		return
	}
	c.release()
	c.release = nil
	c.server.logger.Info("RTSP client disconnected", "remote", c.remote)
}

func (c *rtspSession) logEnd(stage string, err error) {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return
	}
	c.server.logger.Debug("RTSP session ended", "stage", stage, "remote", c.remote, "error", err)
}
