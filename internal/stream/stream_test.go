package stream

import (
	"net"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBuffer(t *testing.T) {
	b := NewBuffer()
	b.Feed("abc")

	p := make([]byte, 2)
	if n := b.TryRead(p); n != 2 || string(p[:n]) != "ab" {
		t.Errorf("TryRead() = %d %q", n, p[:n])
	}
	if _, err := b.Write([]byte("out")); err != nil {
		t.Fatal(err)
	}
	if got := b.TakeOutput(); got != "out" {
		t.Errorf("TakeOutput() = %q, want %q", got, "out")
	}
	if got := b.Output(); got != "" {
		t.Errorf("Output() after take = %q", got)
	}

	b.Close()
	if b.Closed() {
		t.Error("Closed() = true with pending input")
	}
	b.TryRead(p)
	if !b.Closed() {
		t.Error("Closed() = false after draining")
	}
	if _, err := b.Write([]byte("x")); err == nil {
		t.Error("Write() after Close should fail")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPump(t *testing.T) {
	local, remote := net.Pipe()
	p := NewPump(local)

	go func() {
		remote.Write([]byte("hello\n")) //nolint:errcheck // test peer
	}()
	waitFor(t, func() bool { return p.Pending() == 6 })

	buf := make([]byte, 16)
	if n := p.TryRead(buf); string(buf[:n]) != "hello\n" {
		t.Errorf("TryRead() = %q", buf[:n])
	}
	if n := p.TryRead(buf); n != 0 {
		t.Errorf("TryRead() on empty = %d", n)
	}

	got := make(chan string, 1)
	go func() {
		b := make([]byte, 3)
		n, _ := remote.Read(b)
		got <- string(b[:n])
	}()
	if _, err := p.Write([]byte("ok\n")); err != nil {
		t.Fatal(err)
	}
	if s := <-got; s != "ok\n" {
		t.Errorf("peer read %q", s)
	}

	remote.Close()
	waitFor(t, p.Closed)
	if err := p.Close(); err != nil {
		t.Logf("Close() = %v", err)
	}
}

func TestSerialMode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SerialConfig
		want    serial.Mode
		wantErr bool
	}{
		{"defaults", SerialConfig{}, serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}, false},
		{"even two stop", SerialConfig{Baud: 9600, DataBits: 7, Parity: "e", StopBits: 2}, serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}, false},
		{"bad parity", SerialConfig{Parity: "X"}, serial.Mode{}, true},
		{"bad stop bits", SerialConfig{StopBits: 3}, serial.Mode{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := serialMode(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("serialMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && *got != tt.want {
				t.Errorf("serialMode() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
