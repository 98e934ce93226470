// Package stream provides the non-blocking byte streams the console reads
// from: an in-memory buffer, a pump around any blocking connection (TCP,
// UART, stdin) and a serial port opener.
package stream

import (
	"bytes"
	"io"
	"sync"
)

// Stream is a bidirectional byte stream polled from the cooperative loop.
type Stream interface {
	io.Writer
	// TryRead copies available bytes into p and returns how many. It never
	// blocks; zero means nothing is pending.
	TryRead(p []byte) int
	Close() error
	// Closed reports that the peer is gone and no input remains.
	Closed() bool
}

// Buffer is an in-memory Stream. Tests and the websocket console feed input
// with Feed and collect output with Output.
type Buffer struct {
	mu     sync.Mutex
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
}

// NewBuffer returns an empty buffer stream.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Feed queues input bytes.
func (b *Buffer) Feed(s string) {
	b.mu.Lock()
	b.in.WriteString(s)
	b.mu.Unlock()
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, io.ErrClosedPipe
	}
	return b.out.Write(p)
}

// TryRead implements Stream.
func (b *Buffer) TryRead(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, _ := b.in.Read(p)
	return n
}

// Output returns everything written so far without consuming it.
func (b *Buffer) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// TakeOutput returns and clears the written bytes.
func (b *Buffer) TakeOutput() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.out.String()
	b.out.Reset()
	return s
}

// Close implements Stream.
func (b *Buffer) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// Closed implements Stream.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed && b.in.Len() == 0
}
