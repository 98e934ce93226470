package stream

import (
	"bytes"
	"io"
	"sync"
)

const pumpChunk = 256

// Pump turns a blocking io.ReadWriteCloser into a Stream. A goroutine reads
// into an internal buffer which TryRead drains.
type Pump struct {
	rwc io.ReadWriteCloser

	mu     sync.Mutex
	buf    bytes.Buffer
	eof    bool
	closed bool
	err    error

	wmu  sync.Mutex
	done chan struct{}
}

// NewPump starts reading rwc.
func NewPump(rwc io.ReadWriteCloser) *Pump {
	p := &Pump{rwc: rwc, done: make(chan struct{})}
	go p.run()
	return p
}

func (p *Pump) run() {
	defer close(p.done)
	chunk := make([]byte, pumpChunk)
	for {
		n, err := p.rwc.Read(chunk)
		p.mu.Lock()
		if n > 0 {
			p.buf.Write(chunk[:n])
		}
		if err != nil {
			p.eof = true
			if err != io.EOF {
				p.err = err
			}
		}
		p.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Write implements io.Writer.
func (p *Pump) Write(b []byte) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	return p.rwc.Write(b)
}

// TryRead implements Stream.
func (p *Pump) TryRead(b []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, _ := p.buf.Read(b)
	return n
}

// Pending returns the number of buffered input bytes.
func (p *Pump) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// Close closes the underlying connection and waits for the reader to stop.
func (p *Pump) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.rwc.Close()
	<-p.done
	return err
}

// Closed reports that the connection ended and all input was consumed.
func (p *Pump) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return (p.eof || p.closed) && p.buf.Len() == 0
}

// Err returns the read error that ended the pump, if any other than EOF.
func (p *Pump) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
