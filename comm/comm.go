/*Package comm provides connection plumbing for instruments reached over TCP or
RS-232: a pool of reusable connections, connection makers that retry with
exponential backoff, and io.ReadWriter wrappers for line termination and I/O
deadlines.

Most usages boil down to:
	1.  build a CreationFunc with BackingOffTCPConnMaker or SerialConnMaker
	2.  hand it to NewPool
	3.  Get a connection, wrap it with NewTerminator (and NewTimeout for TCP),
		do the exchange, then ReturnWithError it to the pool
*/
package comm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrNoDeadline is generated when NewTimeout is given something without deadlines
	ErrNoDeadline = errors.New("connection does not support deadlines")
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// TCPSetup opens a new TCP connection with a timeout on connect.  Per-call
// deadlines are the job of NewTimeout.
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

func connBackoff() *backoff.ExponentialBackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock}
}

// BackingOffTCPConnMaker returns a CreationFunc that dials addr, retrying
// with an exponential backoff for up to three seconds.  A refused connection
// is not retried, the remote is there and does not want us.
func BackingOffTCPConnMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var (
			conn    net.Conn
			lastErr error
		)
		op := func() error {
			c, err := TCPSetup(addr, timeout)
			if err != nil {
				lastErr = err
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return nil
				}
				return err
			}
			conn = c
			return nil
		}
		err := backoff.Retry(op, connBackoff())
		if conn != nil {
			return conn, nil
		}
		if err == nil {
			err = lastErr
		}
		return nil, fmt.Errorf("connection to %s failed: %w", addr, err)
	}
}

// SerialConnMaker returns a CreationFunc that opens the serial port described
// by conf, retrying with an exponential backoff.  USB-serial adapters often
// need a moment after the previous holder closes them.
func SerialConnMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var port *serial.Port
		op := func() error {
			p, err := serial.OpenPort(conf)
			if err != nil {
				return err
			}
			port = p
			return nil
		}
		if err := backoff.Retry(op, connBackoff()); err != nil {
			return nil, fmt.Errorf("opening serial port %s: %w", conf.Name, err)
		}
		return port, nil
	}
}

// Terminator wraps an io.ReadWriter, appending Tx to every write and reading
// through Rx on every read.  The Rx byte is stripped from what Read returns.
type Terminator struct {
	rw  io.ReadWriter
	br  *bufio.Reader
	tx  []byte
	rx  byte
	buf []byte
}

// NewTerminator returns a Terminator around rw.  tx may be more than one
// byte, e.g. "\r\n".
func NewTerminator(rw io.ReadWriter, tx []byte, rx byte) *Terminator {
	return &Terminator{rw: rw, br: bufio.NewReader(rw), tx: tx, rx: rx}
}

// Write writes p followed by the Tx terminator in a single call
func (t *Terminator) Write(p []byte) (int, error) {
	msg := make([]byte, 0, len(p)+len(t.tx))
	msg = append(msg, p...)
	msg = append(msg, t.tx...)
	n, err := t.rw.Write(msg)
	if n > len(p) {
		n = len(p)
	}
	return n, err
}

// Read reads one terminated message into p.  If p is too short, the
// remainder is returned by the next call.
func (t *Terminator) Read(p []byte) (int, error) {
	if len(t.buf) == 0 {
		line, err := t.ReadLine()
		if err != nil {
			return 0, err
		}
		t.buf = line
	}
	n := copy(p, t.buf)
	t.buf = t.buf[n:]
	return n, nil
}

// ReadLine reads through the Rx terminator and returns the message without it
func (t *Terminator) ReadLine() ([]byte, error) {
	line, err := t.br.ReadBytes(t.rx)
	if err != nil {
		if len(line) > 0 && err == io.EOF {
			return line, ErrTerminatorNotFound
		}
		return line, err
	}
	return bytes.TrimSuffix(line, []byte{t.rx}), nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// Timeout wraps a connection so every read or write gets a fresh deadline
type Timeout struct {
	io.ReadWriter
	d       deadliner
	timeout time.Duration
}

// NewTimeout wraps rw, which must support SetDeadline, directly or through
// a Terminator wrapping a net.Conn
func NewTimeout(rw io.ReadWriter, timeout time.Duration) (*Timeout, error) {
	inner := rw
	if t, ok := rw.(*Terminator); ok {
		inner = t.rw
	}
	d, ok := inner.(deadliner)
	if !ok {
		return nil, ErrNoDeadline
	}
	return &Timeout{ReadWriter: rw, d: d, timeout: timeout}, nil
}

func (t *Timeout) Read(p []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.ReadWriter.Read(p)
}

func (t *Timeout) Write(p []byte) (int, error) {
	if err := t.d.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.ReadWriter.Write(p)
}
