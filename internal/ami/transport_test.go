package ami

import (
	"errors"
	"net"
	"testing"
	"time"
)

func pipeTransport(t *testing.T, readTimeout time.Duration) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return newTransport(client, readTimeout), server
}

func TestReadMessageStopsAtBlankLine(t *testing.T) {
	transport, peer := pipeTransport(t, time.Second)

	go func() {
		peer.Write([]byte("Response: Success\r\nMessage: Authentication accepted\r\n\r\nEvent: Trailing\r\n"))
	}()

	lines, err := transport.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %v", lines)
	}
	if lines[0] != "Response: Success" || lines[1] != "Message: Authentication accepted" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestReadMessageReturnsPartialOnStreamClose(t *testing.T) {
	transport, peer := pipeTransport(t, time.Second)

	go func() {
		peer.Write([]byte("Response: Success\r\n"))
		peer.Close()
	}()

	lines, err := transport.ReadMessage()
	if err != nil {
		t.Fatalf("partial message on close should not error, got %v", err)
	}
	if len(lines) != 1 || lines[0] != "Response: Success" {
		t.Fatalf("unexpected partial lines: %v", lines)
	}
}

func TestReadMessageTimesOutOnSilentPeer(t *testing.T) {
	transport, _ := pipeTransport(t, 50*time.Millisecond)

	_, err := transport.ReadMessage()
	if err == nil {
		t.Fatal("expected read deadline error")
	}
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	transport, _ := pipeTransport(t, time.Second)

	if err := transport.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := transport.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	transport, _ := pipeTransport(t, time.Second)
	_ = transport.Close()

	err := transport.WriteString("Action: Ping\r\n\r\n")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}
