// Package remote is the TCP shell.
//
// A new connection has a short window to send one line. A transfer header
// (GET or FILE:) starts a download or upload; any other line is executed once
// with its output sent back and the connection closed. A connection that
// stays silent for the window becomes an interactive console session.
package remote

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/console"
	"github.com/ocfu/espconsole/internal/stream"
	"github.com/ocfu/espconsole/internal/transfer"
)

// DefaultOneShotTimeout is how long a new connection may take to send a
// one-shot line before it becomes interactive.
const DefaultOneShotTimeout = time.Second

// acceptBacklog bounds connections accepted but not yet polled.
const acceptBacklog = 8

// maxHeader bounds the first line of a connection.
const maxHeader = 1024

// Logger defines the logging interface used by the Server.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Server.
type Options struct {
	Listen         string
	OneShotTimeout time.Duration
	UploadTimeout  time.Duration
	Prompt         *console.Prompt
	ANSI           bool
	History        int
	// Free returns the free filesystem space, for upload limits.
	Free func() int64
	// Banner is written when an interactive session starts.
	Banner string
}

type pending struct {
	id       int
	p        *stream.Pump
	buf      []byte
	deadline time.Time
}

type upload struct {
	id int
	p  *stream.Pump
	u  *transfer.Upload
}

type session struct {
	id int
	p  *stream.Pump
	c  *console.Console
}

// Server accepts shell connections. Accepting runs on a goroutine; everything
// else happens in Poll, on the caller's loop.
type Server struct {
	opts   Options
	d      *command.Dispatcher
	fs     afero.Fs
	now    func() time.Time
	logger Logger

	ln       net.Listener
	accepted chan net.Conn
	wg       sync.WaitGroup

	nextID   int
	pending  []*pending
	uploads  []*upload
	sessions []*session
	closing  map[int]bool
}

// New creates a server. Start opens the listener.
func New(d *command.Dispatcher, fs afero.Fs, now func() time.Time, opts Options) *Server {
	if opts.OneShotTimeout <= 0 {
		opts.OneShotTimeout = DefaultOneShotTimeout
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = transfer.DefaultTimeout
	}
	return &Server{
		opts:     opts,
		d:        d,
		fs:       fs,
		now:      now,
		logger:   noopLogger{},
		accepted: make(chan net.Conn, acceptBacklog),
		closing:  make(map[int]bool),
	}
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(logger Logger) {
	s.logger = logger
}

// Start listens on the configured address.
func (s *Server) Start() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Listen, err)
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop(ln)
	s.logger.Info("remote shell listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the listener is open.
func (s *Server) Running() bool { return s.ln != nil }

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}
		select {
		case s.accepted <- conn:
		default:
			s.logger.Warn("connection rejected, backlog full", "remote", conn.RemoteAddr().String())
			_ = conn.Close()
		}
	}
}

// Sessions returns the number of interactive sessions.
func (s *Server) Sessions() int { return len(s.sessions) }

// Clients returns the ids of connected interactive clients.
func (s *Server) Clients() []int {
	ids := make([]int, len(s.sessions))
	for i, ss := range s.sessions {
		ids[i] = ss.id
	}
	return ids
}

// Disconnect closes the interactive session of client id after the current
// command returns. It is installed as the dispatcher's exit handler.
func (s *Server) Disconnect(id int) bool {
	for _, ss := range s.sessions {
		if ss.id == id {
			s.closing[id] = true
			return true
		}
	}
	return false
}

// Poll services new connections, transfers and sessions. It never blocks.
func (s *Server) Poll() {
	s.acceptPending()
	s.pollPending()
	s.pollUploads()
	s.pollSessions()
}

func (s *Server) acceptPending() {
	for {
		select {
		case conn := <-s.accepted:
			s.nextID++
			s.pending = append(s.pending, &pending{
				id:       s.nextID,
				p:        stream.NewPump(conn),
				deadline: s.now().Add(s.opts.OneShotTimeout),
			})
			s.logger.Debug("client connected", "client", s.nextID, "remote", conn.RemoteAddr().String())
		default:
			return
		}
	}
}

func (s *Server) pollPending() {
	keep := s.pending[:0]
	for _, pc := range s.pending {
		if s.pollOne(pc) {
			keep = append(keep, pc)
		}
	}
	clear(s.pending[len(keep):])
	s.pending = keep
}

// pollOne returns true while the connection is still undecided.
func (s *Server) pollOne(pc *pending) bool {
	var chunk [256]byte
	for {
		n := pc.p.TryRead(chunk[:])
		if n == 0 {
			break
		}
		pc.buf = append(pc.buf, chunk[:n]...)
	}

	if i := bytes.IndexByte(pc.buf, '\n'); i >= 0 {
		line := strings.TrimSpace(string(pc.buf[:i]))
		rest := pc.buf[i+1:]
		s.handleLine(pc, line, rest)
		return false
	}
	if len(pc.buf) > maxHeader {
		s.logger.Warn("first line too long", "client", pc.id)
		_ = pc.p.Close()
		return false
	}
	if pc.p.Closed() {
		_ = pc.p.Close()
		return false
	}
	if !s.now().Before(pc.deadline) {
		s.startSession(pc)
		return false
	}
	return true
}

func (s *Server) handleLine(pc *pending, line string, rest []byte) {
	if !transfer.IsHeader(line) {
		s.logger.Debug("one-shot command", "client", pc.id, "line", line)
		if line != "" {
			s.d.Dispatch(line, pc.p, pc.id, nil)
		}
		_ = pc.p.Close()
		return
	}

	hdr, err := transfer.ParseHeader(line)
	if err != nil {
		s.reject(pc.p, err)
		return
	}
	if hdr.Kind == transfer.Get {
		n, err := transfer.Send(s.fs, pc.p, hdr.Name)
		if err != nil {
			s.reject(pc.p, err)
			return
		}
		s.logger.Info("file sent", "name", hdr.Name, "size", n, "client", pc.id)
		_ = pc.p.Close()
		return
	}

	var free int64
	if s.opts.Free != nil {
		free = s.opts.Free()
	}
	u, err := transfer.NewUpload(s.fs, hdr, free, s.now, s.opts.UploadTimeout)
	if err != nil {
		s.reject(pc.p, err)
		return
	}
	up := &upload{id: pc.id, p: pc.p, u: u}
	if len(rest) > 0 {
		if _, err := u.Feed(rest); err != nil {
			s.reject(pc.p, err)
			return
		}
	}
	if u.Done() {
		s.uploaded(up)
		return
	}
	s.uploads = append(s.uploads, up)
}

func (s *Server) pollUploads() {
	keep := s.uploads[:0]
	for _, up := range s.uploads {
		done, err := up.u.Poll(up.p)
		switch {
		case err != nil:
			s.reject(up.p, err)
		case done:
			s.uploaded(up)
		default:
			keep = append(keep, up)
		}
	}
	clear(s.uploads[len(keep):])
	s.uploads = keep
}

func (s *Server) uploaded(up *upload) {
	hdr := up.u.Header()
	fmt.Fprintf(up.p, "OK %d\n", up.u.Received())
	s.logger.Info("file received", "name", hdr.Name, "size", up.u.Received(), "client", up.id)
	_ = up.p.Close()
}

func (s *Server) reject(p *stream.Pump, err error) {
	fmt.Fprintf(p, "ERROR: %v\n", err)
	s.logger.Warn("transfer aborted", "error", err)
	_ = p.Close()
}

func (s *Server) startSession(pc *pending) {
	c := console.New(&replay{Stream: pc.p, pre: pc.buf}, s.d, s.opts.Prompt, console.Options{
		Client:       pc.id,
		ANSI:         s.opts.ANSI,
		HistoryDepth: s.opts.History,
	})
	if s.opts.Banner != "" {
		fmt.Fprintln(pc.p, s.opts.Banner)
	}
	c.Prompt()
	s.sessions = append(s.sessions, &session{id: pc.id, p: pc.p, c: c})
	s.logger.Info("interactive session started", "client", pc.id)
}

func (s *Server) pollSessions() {
	keep := s.sessions[:0]
	for _, ss := range s.sessions {
		ss.c.Poll()
		if s.closing[ss.id] || ss.c.Closed() {
			delete(s.closing, ss.id)
			_ = ss.p.Close()
			s.logger.Info("interactive session ended", "client", ss.id)
			continue
		}
		keep = append(keep, ss)
	}
	clear(s.sessions[len(keep):])
	s.sessions = keep
}

// Close stops the listener and drops every connection.
func (s *Server) Close() error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	s.wg.Wait()
	s.ln = nil

drain:
	for {
		select {
		case conn := <-s.accepted:
			_ = conn.Close()
		default:
			break drain
		}
	}
	for _, pc := range s.pending {
		_ = pc.p.Close()
	}
	for _, up := range s.uploads {
		up.u.Abort()
		_ = up.p.Close()
	}
	for _, ss := range s.sessions {
		_ = ss.p.Close()
	}
	s.pending, s.uploads, s.sessions = nil, nil, nil
	s.logger.Info("remote shell stopped")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", err)
	}
	return nil
}

// replay serves bytes read during the one-shot window before the stream.
type replay struct {
	stream.Stream
	pre []byte
}

func (r *replay) TryRead(p []byte) int {
	if len(r.pre) > 0 {
		n := copy(p, r.pre)
		r.pre = r.pre[n:]
		return n
	}
	return r.Stream.TryRead(p)
}

func (r *replay) Closed() bool {
	return len(r.pre) == 0 && r.Stream.Closed()
}
