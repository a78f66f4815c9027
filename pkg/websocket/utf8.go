package websocket

// utf8Result is the outcome of validating a byte slice as a prefix of
// a well-formed UTF-8 stream, following the lead-byte ranges tightened
// by RFC 3629 (no surrogates, nothing past U+10FFFF, no overlong
// encodings).
type utf8Result struct {
	// validLen is the length of the longest well-formed UTF-8 prefix
	// of the input.
	validLen int
	// invalid is true when some byte in the input can never be
	// extended into well-formed UTF-8.
	invalid bool
}

// validateUTF8Prefix scans p and reports how much of it is valid
// UTF-8. If p ends in the middle of a multi-byte sequence that is
// still well-formed so far, validLen stops before that sequence and
// invalid is false: the caller decides whether to wait for more bytes
// or treat the tail as an error, depending on whether more bytes are
// still expected.
func validateUTF8Prefix(p []byte) utf8Result {
	i := 0
	for i < len(p) {
		n, need, ok := utf8SequenceLen(p[i:])
		if !ok {
			return utf8Result{validLen: i, invalid: true}
		}
		if need > 0 {
			return utf8Result{validLen: i}
		}
		i += n
	}
	return utf8Result{validLen: i}
}

// utf8SequenceLen inspects the lead byte of p. It returns (n, 0, true)
// when a complete n-byte sequence starts at p[0]; (0, need, true) when
// p is a valid but truncated prefix of a sequence that needs "need"
// more bytes to be decided; and (0, 0, false) when p can never be
// extended into valid UTF-8.
func utf8SequenceLen(p []byte) (n, need int, ok bool) {
	b0 := p[0]
	switch {
	case b0 <= 0x7F:
		return 1, 0, true
	case b0 >= 0xC2 && b0 <= 0xDF:
		return utf8Tail(p, 2, 0x80, 0xBF, 0, 0)
	case b0 == 0xE0:
		return utf8Tail(p, 3, 0xA0, 0xBF, 0x80, 0xBF)
	case b0 >= 0xE1 && b0 <= 0xEC:
		return utf8Tail(p, 3, 0x80, 0xBF, 0x80, 0xBF)
	case b0 == 0xED:
		return utf8Tail(p, 3, 0x80, 0x9F, 0x80, 0xBF)
	case b0 >= 0xEE && b0 <= 0xEF:
		return utf8Tail(p, 3, 0x80, 0xBF, 0x80, 0xBF)
	case b0 == 0xF0:
		return utf8Tail4(p, 0x90, 0xBF)
	case b0 >= 0xF1 && b0 <= 0xF3:
		return utf8Tail4(p, 0x80, 0xBF)
	case b0 == 0xF4:
		return utf8Tail4(p, 0x80, 0x8F)
	default:
		return 0, 0, false
	}
}

// utf8Tail validates a 2- or 3-byte sequence. lo2/hi2 bound the second
// byte; lo3/hi3 (ignored when total == 2) bound the third.
func utf8Tail(p []byte, total int, lo2, hi2 byte, lo3, hi3 byte) (n, need int, ok bool) {
	if len(p) < 2 {
		return 0, total - len(p), true
	}
	if p[1] < lo2 || p[1] > hi2 {
		return 0, 0, false
	}
	if total == 2 {
		return 2, 0, true
	}
	if len(p) < 3 {
		return 0, total - len(p), true
	}
	if p[2] < lo3 || p[2] > hi3 {
		return 0, 0, false
	}
	return 3, 0, true
}

// utf8Tail4 validates a 4-byte sequence whose second byte is bounded
// by lo2/hi2; the third and fourth bytes are always plain 0x80-0xBF
// continuation bytes.
func utf8Tail4(p []byte, lo2, hi2 byte) (n, need int, ok bool) {
	if len(p) < 2 {
		return 0, 4 - len(p), true
	}
	if p[1] < lo2 || p[1] > hi2 {
		return 0, 0, false
	}
	if len(p) < 3 {
		return 0, 4 - len(p), true
	}
	if !isContinuation(p[2]) {
		return 0, 0, false
	}
	if len(p) < 4 {
		return 0, 4 - len(p), true
	}
	if !isContinuation(p[3]) {
		return 0, 0, false
	}
	return 4, 0, true
}

func isContinuation(b byte) bool { return b >= 0x80 && b <= 0xBF }
