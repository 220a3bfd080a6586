package ami

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrConnection indicates the manager socket could not be opened or failed
// mid-operation. Fatal for the dispatch cycle that owns the session.
var ErrConnection = errors.New("ami: connection error")

// Transport provides line-buffered I/O over the manager TCP socket.
type Transport struct {
	conn        net.Conn
	reader      *bufio.Reader
	readTimeout time.Duration
	closed      bool
}

// DialTransport opens a TCP connection to the manager port. The connect
// timeout bounds the dial; readTimeout bounds every subsequent read so a
// silent peer cannot hang the caller indefinitely.
func DialTransport(host string, port int, connectTimeout, readTimeout time.Duration) (*Transport, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, addr, err)
	}
	return newTransport(conn, readTimeout), nil
}

func newTransport(conn net.Conn, readTimeout time.Duration) *Transport {
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &Transport{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		readTimeout: readTimeout,
	}
}

// ReadLine reads a single line, stripping the trailing CRLF.
func (t *Transport) ReadLine() (string, error) {
	if t.closed {
		return "", fmt.Errorf("%w: read on closed transport", ErrConnection)
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
		return "", fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: read: %v", ErrConnection, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadMessage accumulates lines until a blank line or end of stream. A
// stream closed mid-message yields the partial lines without error; a
// stream closed before any line is an error.
func (t *Transport) ReadMessage() ([]string, error) {
	var lines []string
	for {
		if t.closed {
			return lines, fmt.Errorf("%w: read on closed transport", ErrConnection)
		}
		if err := t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)); err != nil {
			return lines, fmt.Errorf("%w: set deadline: %v", ErrConnection, err)
		}
		raw, err := t.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && (len(lines) > 0 || raw != "") {
				if trimmed := strings.TrimRight(raw, "\r\n"); trimmed != "" {
					lines = append(lines, trimmed)
				}
				return lines, nil
			}
			return lines, fmt.Errorf("%w: read: %v", ErrConnection, err)
		}
		line := strings.TrimRight(raw, "\r\n")
		if line == "" {
			return lines, nil
		}
		lines = append(lines, line)
	}
}

// WriteString writes raw bytes to the socket.
func (t *Transport) WriteString(s string) error {
	if t.closed {
		return fmt.Errorf("%w: write on closed transport", ErrConnection)
	}
	if _, err := io.WriteString(t.conn, s); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return nil
}

// Close shuts the socket down. Safe to call more than once.
func (t *Transport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrConnection, err)
	}
	return nil
}
