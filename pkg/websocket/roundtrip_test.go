package websocket

import (
	"bytes"
	"testing"
)

func handshakeBoth(t *testing.T, client, server *Session) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- server.Handshake("example.com", "/chat", "") }()
	if err := client.Handshake("example.com", "/chat", ""); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}

func recvWholeMessage(t *testing.T, s *Session) (Opcode, []byte) {
	t.Helper()
	var out []byte
	var op Opcode
	buf := make([]byte, 4)
	for {
		res, err := s.RecvInto(buf)
		if err != nil {
			t.Fatalf("RecvInto: %v", err)
		}
		op = res.Opcode
		out = append(out, buf[:res.N]...)
		if res.Final {
			return op, out
		}
	}
}

func TestTextRoundTrip(t *testing.T) {
	client, server := newPipeSessions(t)
	handshakeBoth(t, client, server)

	want := "hello, websocket"
	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteText([]byte(want)) }()

	op, got := recvWholeMessage(t, server)
	if err := <-errCh; err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if op != OpcodeText {
		t.Fatalf("opcode = %v, want text", op)
	}
	if string(got) != want {
		t.Fatalf("payload = %q, want %q", got, want)
	}
}

func TestBinaryRoundTripServerToClient(t *testing.T) {
	client, server := newPipeSessions(t)
	handshakeBoth(t, client, server)

	want := bytes.Repeat([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 50)
	errCh := make(chan error, 1)
	go func() { errCh <- server.WriteBinary(want) }()

	op, got := recvWholeMessage(t, client)
	if err := <-errCh; err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	if op != OpcodeBinary {
		t.Fatalf("opcode = %v, want binary", op)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestLargeMessageThroughSmallBuffer(t *testing.T) {
	// Small enough to force many buffer refills, yet large enough to hold
	// the ~190-byte handshake request (minBufferSize is not).
	client, server := newPipeSessions(t, WithBufferSize(256))
	handshakeBoth(t, client, server)

	want := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500)
	errCh := make(chan error, 1)
	go func() { errCh <- client.WriteText(want) }()

	_, got := recvWholeMessage(t, server)
	if err := <-errCh; err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

func TestPingPong(t *testing.T) {
	client, server := newPipeSessions(t)
	handshakeBoth(t, client, server)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Ping([]byte("are you there")) }()

	res, err := server.RecvInto(make([]byte, 64))
	if err != nil {
		t.Fatalf("RecvInto: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if res.Opcode != OpcodePing {
		t.Fatalf("opcode = %v, want ping", res.Opcode)
	}
	if string(server.ControlPayload()) != "are you there" {
		t.Fatalf("control payload = %q", server.ControlPayload())
	}
}

func TestCloseRoundTrip(t *testing.T) {
	client, server := newPipeSessions(t)
	handshakeBoth(t, client, server)

	errCh := make(chan error, 1)
	go func() { errCh <- client.Close(StatusNormalClosure, []byte("bye")) }()

	res, err := server.RecvInto(make([]byte, 64))
	if err != nil {
		t.Fatalf("RecvInto: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Close: %v", err)
	}
	if res.Opcode != OpcodeClose {
		t.Fatalf("opcode = %v, want close", res.Opcode)
	}
	if server.CloseCode() != uint16(StatusNormalClosure) {
		t.Fatalf("close code = %d, want %d", server.CloseCode(), StatusNormalClosure)
	}
	if string(server.ControlPayload()[2:]) != "bye" {
		t.Fatalf("close reason = %q", server.ControlPayload()[2:])
	}
}

func TestFragmentedTextMessage(t *testing.T) {
	client, server := newPipeSessions(t)
	handshakeBoth(t, client, server)

	// The engine never fragments outgoing messages and has no public
	// "send a non-final fragment" API, so two Sessions cannot produce a
	// fragmented message between them. Fragmentation is exercised from
	// the receive side instead, with raw frame fixtures in rx_test.go
	// (TestRecvFragmentedMessagePayload).
	t.Skip("fragmented sends are exercised at the frame level in rx_test.go")
}
