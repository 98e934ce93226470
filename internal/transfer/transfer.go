// Package transfer implements the file upload and download protocol spoken
// on a fresh shell connection.
//
// A download is requested with
//
//	GET <name>\n
//
// and answered with "SIZE: <n>\n" followed by exactly n bytes. An upload is
// announced with
//
//	FILE:<name> SIZE:<n>\n
//
// followed by exactly n bytes. The upload is written to a temporary file and
// renamed into place once complete, so an aborted transfer never leaves a
// truncated file behind.
package transfer

import (
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/stream"
)

// DefaultTimeout aborts an upload when no bytes arrive for this long.
const DefaultTimeout = 5 * time.Second

// MaxShare is the largest fraction of free space one upload may use.
const MaxShare = 0.9

const partSuffix = ".part"

// Kind distinguishes downloads from uploads.
type Kind int

const (
	Get Kind = iota
	Put
)

// Header is a parsed transfer request line.
type Header struct {
	Kind Kind
	Name string
	Size int64
}

// IsHeader reports whether line starts a transfer rather than a command.
func IsHeader(line string) bool {
	return strings.HasPrefix(line, "GET ") || strings.HasPrefix(line, "FILE:")
}

// ParseHeader parses a GET or FILE line. The name is rooted at /.
func ParseHeader(line string) (Header, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case strings.HasPrefix(line, "GET "):
		name := strings.TrimSpace(line[len("GET "):])
		if name == "" {
			return Header{}, fmt.Errorf("%w: %q", ErrBadHeader, line)
		}
		return Header{Kind: Get, Name: clean(name)}, nil
	case strings.HasPrefix(line, "FILE:"):
		rest := line[len("FILE:"):]
		i := strings.LastIndex(rest, " SIZE:")
		if i <= 0 {
			return Header{}, fmt.Errorf("%w: %q", ErrBadHeader, line)
		}
		size, err := strconv.ParseInt(strings.TrimSpace(rest[i+len(" SIZE:"):]), 10, 64)
		if err != nil || size < 0 {
			return Header{}, fmt.Errorf("%w: %q", ErrBadHeader, line)
		}
		return Header{Kind: Put, Name: clean(strings.TrimSpace(rest[:i])), Size: size}, nil
	}
	return Header{}, ErrNotHeader
}

func clean(name string) string {
	return path.Clean("/" + name)
}

// Send writes the size line and the content of name to w.
func Send(fs afero.Fs, w io.Writer, name string) (int64, error) {
	f, err := fs.Open(clean(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return 0, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}
	if _, err := fmt.Fprintf(w, "SIZE: %d\n", info.Size()); err != nil {
		return 0, err
	}
	n, err := io.CopyN(w, f, info.Size())
	if err != nil {
		return n, fmt.Errorf("sending %s: %w", name, err)
	}
	return n, nil
}

// Upload receives one announced file body.
type Upload struct {
	fs       afero.Fs
	hdr      Header
	file     afero.File
	received int64
	timeout  time.Duration
	now      func() time.Time
	last     time.Time
	done     bool
}

// NewUpload checks the announced size against free and opens the temporary
// file. timeout 0 means DefaultTimeout.
func NewUpload(fs afero.Fs, hdr Header, free int64, now func() time.Time, timeout time.Duration) (*Upload, error) {
	if hdr.Kind != Put {
		return nil, fmt.Errorf("%w: not an upload", ErrBadHeader)
	}
	if float64(hdr.Size) > float64(free)*MaxShare {
		return nil, fmt.Errorf("%w: %d bytes requested, %d free", ErrNoSpace, hdr.Size, free)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if dir := path.Dir(hdr.Name); dir != "/" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	f, err := fs.Create(hdr.Name + partSuffix)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", hdr.Name, err)
	}
	u := &Upload{fs: fs, hdr: hdr, file: f, timeout: timeout, now: now, last: now()}
	if hdr.Size == 0 {
		return u, u.finish()
	}
	return u, nil
}

// Header returns the announced header.
func (u *Upload) Header() Header { return u.hdr }

// Received returns the number of body bytes written so far.
func (u *Upload) Received() int64 { return u.received }

// Done reports whether the file is complete and in place.
func (u *Upload) Done() bool { return u.done }

// Feed writes body bytes. It returns true once the announced size has been
// received. Bytes beyond the announced size abort the upload.
func (u *Upload) Feed(p []byte) (bool, error) {
	if u.done {
		if len(p) > 0 {
			return true, fmt.Errorf("%w: %d extra bytes", ErrSizeMismatch, len(p))
		}
		return true, nil
	}
	if len(p) == 0 {
		return false, nil
	}
	u.last = u.now()
	if int64(len(p)) > u.hdr.Size-u.received {
		u.Abort()
		return false, fmt.Errorf("%w: got more than %d bytes", ErrSizeMismatch, u.hdr.Size)
	}
	if _, err := u.file.Write(p); err != nil {
		u.Abort()
		return false, fmt.Errorf("writing %s: %w", u.hdr.Name, err)
	}
	u.received += int64(len(p))
	if u.received < u.hdr.Size {
		return false, nil
	}
	return true, u.finish()
}

// Poll drains s into the upload and enforces the idle timeout and an early
// end of stream.
func (u *Upload) Poll(s stream.Stream) (bool, error) {
	buf := make([]byte, 512)
	for !u.done {
		want := min(int64(len(buf)), u.hdr.Size-u.received)
		n := s.TryRead(buf[:want])
		if n == 0 {
			break
		}
		if done, err := u.Feed(buf[:n]); done || err != nil {
			return done, err
		}
	}
	if u.done {
		return true, nil
	}
	if s.Closed() {
		u.Abort()
		return false, fmt.Errorf("%w: got %d of %d bytes", ErrSizeMismatch, u.received, u.hdr.Size)
	}
	if u.now().Sub(u.last) > u.timeout {
		u.Abort()
		return false, fmt.Errorf("%w after %d of %d bytes", ErrTimeout, u.received, u.hdr.Size)
	}
	return false, nil
}

// Abort discards the partial file.
func (u *Upload) Abort() {
	if u.file != nil {
		_ = u.file.Close()
		u.file = nil
		_ = u.fs.Remove(u.hdr.Name + partSuffix)
	}
}

func (u *Upload) finish() error {
	if err := u.file.Close(); err != nil {
		u.file = nil
		_ = u.fs.Remove(u.hdr.Name + partSuffix)
		return fmt.Errorf("closing %s: %w", u.hdr.Name, err)
	}
	u.file = nil
	_ = u.fs.Remove(u.hdr.Name)
	if err := u.fs.Rename(u.hdr.Name+partSuffix, u.hdr.Name); err != nil {
		return fmt.Errorf("renaming %s: %w", u.hdr.Name, err)
	}
	u.done = true
	return nil
}
