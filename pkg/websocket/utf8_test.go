package websocket

import "testing"

func TestValidateUTF8Prefix(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		wantValid int
		wantBad   bool
	}{
		{"empty", nil, 0, false},
		{"ascii", []byte("hello"), 5, false},
		{"two byte complete", []byte{0xC2, 0xA9}, 2, false},
		{"two byte lead only", []byte{0xC2}, 0, false},
		{"three byte complete", []byte("☃"), 3, false},
		{"three byte truncated by one", []byte("☃")[:2], 0, false},
		{"four byte complete", []byte("\U0001F600"), 4, false},
		{"four byte truncated by two", []byte("\U0001F600")[:2], 0, false},
		{"overlong two byte lead", []byte{0xC0, 0x80}, 0, true},
		{"lone continuation byte", []byte{0x80}, 0, true},
		{"surrogate half", []byte{0xED, 0xA0, 0x80}, 0, true},
		{"past max code point", []byte{0xF5, 0x80, 0x80, 0x80}, 0, true},
		{"valid prefix then invalid byte", []byte{'h', 'i', 0xFF}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := validateUTF8Prefix(tt.in)
			if res.invalid != tt.wantBad {
				t.Fatalf("invalid = %v, want %v", res.invalid, tt.wantBad)
			}
			if res.validLen != tt.wantValid {
				t.Fatalf("validLen = %d, want %d", res.validLen, tt.wantValid)
			}
		})
	}
}

func TestValidateUTF8PrefixIncremental(t *testing.T) {
	full := []byte("hello 世界") // "hello 世界"
	for split := 0; split <= len(full); split++ {
		head := full[:split]
		res := validateUTF8Prefix(head)
		if res.invalid {
			t.Fatalf("split %d: unexpected invalid for a prefix of valid UTF-8", split)
		}
		if res.validLen > split {
			t.Fatalf("split %d: validLen %d exceeds input length", split, res.validLen)
		}
	}
}
