package websocket

import "testing"

func TestWithBufferSizeTooSmallPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a too-small buffer size")
		}
	}()
	NewSession(RoleClient, nil, nil, WithBufferSize(10))
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(RoleClient, nil, nil)
	if s.Role() != RoleClient {
		t.Fatalf("Role() = %v, want client", s.Role())
	}
	if len(s.rxBuf) != DefaultBufferSize || len(s.txBuf) != DefaultBufferSize {
		t.Fatalf("buffers not sized to DefaultBufferSize")
	}
	if !s.utf8Check {
		t.Fatal("utf8Check should default to enabled")
	}
}

func TestSessionResetMarksClosed(t *testing.T) {
	s := NewSession(RoleClient, nil, nil)
	s.Reset()
	if _, err := s.RecvInto(make([]byte, 4)); err != ErrSessionClosed {
		t.Fatalf("RecvInto after Reset: err = %v, want ErrSessionClosed", err)
	}
	if err := s.WriteBinary(nil); err != ErrSessionClosed {
		t.Fatalf("WriteBinary after Reset: err = %v, want ErrSessionClosed", err)
	}
}

func TestRoleString(t *testing.T) {
	if RoleClient.String() != "client" {
		t.Fatalf("RoleClient.String() = %q", RoleClient.String())
	}
	if RoleServer.String() != "server" {
		t.Fatalf("RoleServer.String() = %q", RoleServer.String())
	}
}
