package websocket

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// recordSend collects everything written to it.
func recordSend(buf *bytes.Buffer) SendFunc {
	return func(p []byte) (int, error) { return buf.Write(p) }
}

func newClientOverBuffer(t *testing.T, out *bytes.Buffer) *Session {
	t.Helper()
	s := NewSession(RoleClient, chunkRecv(nil, 1), recordSend(out), WithRandSource(zeroReader{}))
	s.hsState = hsDone
	return s
}

// zeroReader produces an endless stream of zero bytes, for
// deterministic mask/nonce generation in tests.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestWriteFrameHeaderLengthEncoding(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		wantHdrLen int
	}{
		{"small", 10, 2 + 4},
		{"boundary 125", 125, 2 + 4},
		{"boundary 126", 126, 4 + 4},
		{"16-bit max", 0xFFFF, 4 + 4},
		{"64-bit path", 0x10000, 10 + 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			s := newClientOverBuffer(t, &out)
			payload := make([]byte, tt.n)
			if err := s.WriteBinary(payload); err != nil {
				t.Fatalf("WriteBinary: %v", err)
			}
			got := out.Bytes()
			if len(got) < tt.wantHdrLen {
				t.Fatalf("frame too short: %d bytes", len(got))
			}
			if got[0] != 0x82 {
				t.Fatalf("byte0 = %#x, want 0x82 (FIN|BINARY)", got[0])
			}
			switch {
			case tt.n <= 125:
				if int(got[1]&0x7F) != tt.n {
					t.Fatalf("7-bit length = %d, want %d", got[1]&0x7F, tt.n)
				}
			case tt.n <= 0xFFFF:
				if got[1]&0x7F != 126 {
					t.Fatalf("length marker = %d, want 126", got[1]&0x7F)
				}
				if int(binary.BigEndian.Uint16(got[2:4])) != tt.n {
					t.Fatalf("16-bit length mismatch")
				}
			default:
				if got[1]&0x7F != 127 {
					t.Fatalf("length marker = %d, want 127", got[1]&0x7F)
				}
				if int(binary.BigEndian.Uint64(got[2:10])) != tt.n {
					t.Fatalf("64-bit length mismatch")
				}
			}
			if got[1]&0x80 == 0 {
				t.Fatalf("client frame must set the mask bit")
			}
		})
	}
}

func TestWriteTextRejectsIncompleteUTF8(t *testing.T) {
	var out bytes.Buffer
	s := newClientOverBuffer(t, &out)
	if err := s.WriteText([]byte{0xE2, 0x98}); err != ErrIncompleteUTF8 {
		t.Fatalf("err = %v, want ErrIncompleteUTF8", err)
	}
}

func TestPingRejectsOversizedPayload(t *testing.T) {
	var out bytes.Buffer
	s := newClientOverBuffer(t, &out)
	if err := s.Ping(make([]byte, 126)); err != ErrTooLong {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
}

func TestServerFramesAreNotMasked(t *testing.T) {
	var out bytes.Buffer
	s := NewSession(RoleServer, chunkRecv(nil, 1), recordSend(&out))
	s.hsState = hsDone

	if err := s.WriteText([]byte("hi")); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	got := out.Bytes()
	if got[1]&0x80 != 0 {
		t.Fatalf("server frame must not set the mask bit")
	}
	if string(got[2:]) != "hi" {
		t.Fatalf("payload = %q, want unmasked %q", got[2:], "hi")
	}
}
