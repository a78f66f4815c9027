package websocket

import "encoding/binary"

// rxState is the incoming frame state machine. Header decodes the
// first two bytes; ExtLen16/ExtLen64 decode an extended length field
// when the 7-bit length says to; Mask reads the 4-byte masking key
// (server sessions only); PayloadStart applies the max-payload check;
// PayloadStream moves bytes from the transport into rxBuf, unmasking
// and (for text) validating UTF-8 as it goes; ControlDispatch surfaces
// a fully-buffered control frame; Drain hands buffered data-frame
// bytes to the caller.
type rxState int

const (
	rxHeader rxState = iota
	rxExtLen16
	rxExtLen64
	rxMask
	rxPayloadStart
	rxPayloadStream
	rxControlDispatch
	rxDrain
)

// RecvResult describes the outcome of one RecvInto or RecvFunc call.
type RecvResult struct {
	// Opcode is Text or Binary for application data (constant across
	// all fragments of one message), or Close/Ping/Pong for a control
	// frame.
	Opcode Opcode
	// N is the number of payload bytes delivered by this call: copied
	// into the destination slice for RecvInto, or passed to the
	// handler for RecvFunc. It is always 0 for control frames; use
	// ControlPayload to retrieve their payload.
	N int
	// Final is true when this call delivered the last bytes of the
	// current message (the FIN fragment's tail), or for any control
	// frame result (control frames are always delivered whole).
	Final bool
}

// rxSink is the shared delivery mechanism behind RecvInto and
// RecvFunc: exactly one of its fields is set.
type rxSink struct {
	dst     []byte
	handler func(p []byte)
}

// RecvInto copies the next chunk of message payload into dst, which
// may be smaller than a full message or a full frame: callers loop,
// growing their own accumulator, until Final is true. A would-block
// error from the underlying RecvFunc is propagated verbatim; calling
// RecvInto again resumes exactly where the engine left off.
func (s *Session) RecvInto(dst []byte) (RecvResult, error) {
	if s.closed {
		return RecvResult{}, ErrSessionClosed
	}
	return s.recvMessage(rxSink{dst: dst})
}

// RecvFunc delivers the next chunk of message payload by invoking
// handler with it directly, avoiding an intermediate copy. handler is
// called at most once per RecvFunc call, with a slice valid only for
// the duration of the call.
func (s *Session) RecvFunc(handler func(p []byte)) (RecvResult, error) {
	if s.closed {
		return RecvResult{}, ErrSessionClosed
	}
	return s.recvMessage(rxSink{handler: handler})
}

func (s *Session) recvMessage(sink rxSink) (RecvResult, error) {
	for {
		switch s.rxState {
		case rxHeader:
			if err := s.fillExact(2); err != nil {
				return RecvResult{}, err
			}
			if err := s.parseHeaderBytes(); err != nil {
				return RecvResult{}, err
			}
			s.rxOff = 0

		case rxExtLen16:
			if err := s.fillExact(2); err != nil {
				return RecvResult{}, err
			}
			length := uint64(binary.BigEndian.Uint16(s.rxBuf[:2]))
			if length < 126 {
				return RecvResult{}, ErrBadLength
			}
			s.rxRemaining = length
			s.rxOff = 0
			s.rxState = s.afterLength()

		case rxExtLen64:
			if err := s.fillExact(8); err != nil {
				return RecvResult{}, err
			}
			length := binary.BigEndian.Uint64(s.rxBuf[:8])
			if length>>63 != 0 || length < 1<<16 {
				return RecvResult{}, ErrBadLength
			}
			s.rxRemaining = length
			s.rxOff = 0
			s.rxState = s.afterLength()

		case rxMask:
			if err := s.fillExact(4); err != nil {
				return RecvResult{}, err
			}
			copy(s.rxMask[:], s.rxBuf[:4])
			s.rxMaskIdx = 0
			s.rxOff = 0
			s.rxState = rxPayloadStart

		case rxPayloadStart:
			if s.maxPayload != 0 && s.rxRemaining > s.maxPayload {
				return RecvResult{}, ErrTooLong
			}
			if !s.currentOp.isControl() {
				s.seedCarry()
			}
			s.rxState = rxPayloadStream

		case rxPayloadStream:
			if err := s.stepPayloadStream(); err != nil {
				return RecvResult{}, err
			}

		case rxControlDispatch:
			result := RecvResult{Opcode: s.currentOp, Final: true}
			s.currentOp = opcodeNone
			s.rxOff = 0
			s.rxState = rxHeader
			return result, nil

		case rxDrain:
			return s.driveDrain(sink)
		}
	}
}

// fillExact accumulates bytes from the transport into rxBuf[0:want],
// tracking progress in rxOff across suspensions.
func (s *Session) fillExact(want int) error {
	for s.rxOff < want {
		n, err := s.recvIO(s.rxBuf[s.rxOff:want])
		if n > 0 {
			s.rxOff += n
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) afterLength() rxState {
	if s.role == RoleServer {
		return rxMask
	}
	return rxPayloadStart
}

// parseHeaderBytes validates and decodes the two header bytes buffered
// in rxBuf[0:2], resolving the effective opcode (following
// continuations) and choosing the next state.
func (s *Session) parseHeaderBytes() error {
	b0, b1 := s.rxBuf[0], s.rxBuf[1]

	fin := b0&0x80 != 0
	rsv := b0 & 0x70
	opcode := Opcode(b0 & 0x0F)
	masked := b1&0x80 != 0
	len7 := uint64(b1 & 0x7F)

	if rsv != 0 {
		return ErrFaultFrame
	}
	if !opcode.valid() {
		return ErrBadOpcode
	}
	if opcode.isControl() && !fin {
		return ErrFaultFrame
	}
	if opcode == opcodeContinuation && s.continuationOp == opcodeNone {
		return ErrFaultFrame
	}
	if opcode.isData() && opcode != opcodeContinuation && s.continuationOp != opcodeNone {
		return ErrFaultFrame
	}
	if s.role == RoleServer && !masked {
		return ErrExpectMask
	}
	if s.role == RoleClient && masked {
		return ErrUnexpectedMask
	}
	if opcode.isControl() && len7 > 125 {
		return ErrBadLength
	}
	if opcode == OpcodeClose && len7 < 2 {
		return ErrFaultFrame
	}

	effectiveOp := opcode
	if opcode == opcodeContinuation {
		effectiveOp = s.continuationOp
		if fin {
			s.continuationOp = opcodeNone
		}
	} else if !fin && opcode.isData() {
		s.continuationOp = opcode
	}
	s.currentOp = effectiveOp
	s.rxFin = fin
	s.rxLen7 = len7

	switch len7 {
	case 126:
		s.rxState = rxExtLen16
	case 127:
		s.rxState = rxExtLen64
	default:
		s.rxRemaining = len7
		s.rxState = s.afterLength()
	}
	return nil
}

// seedCarry reintroduces a UTF-8 tail held over from a previous
// fragment at the front of rxBuf, before new payload bytes for the
// current frame are appended after it.
func (s *Session) seedCarry() {
	if s.rxCarryLen == 0 {
		return
	}
	s.rxOff = copy(s.rxBuf[:s.rxCarryLen], s.rxCarry[:s.rxCarryLen])
	s.rxCursor = 0
	s.rxCarryLen = 0
}

// stepPayloadStream performs one recv call's worth of progress on the
// current frame's payload, then decides whether to keep streaming,
// surface a control frame, or move on to delivering buffered data.
func (s *Session) stepPayloadStream() error {
	if s.rxRemaining > 0 {
		free := len(s.rxBuf) - s.rxOff
		if free == 0 {
			return ErrFaultFrame
		}
		want := s.rxRemaining
		if want > uint64(free) {
			want = uint64(free)
		}
		n, err := s.recvIO(s.rxBuf[s.rxOff : s.rxOff+int(want)])
		if n > 0 {
			if s.role == RoleServer {
				unmask(s.rxBuf[s.rxOff:s.rxOff+n], &s.rxMask, &s.rxMaskIdx)
			}
			s.rxOff += n
			s.rxRemaining -= uint64(n)
		}
		if err != nil {
			return err
		}
	}

	if s.currentOp.isControl() {
		if s.rxRemaining > 0 {
			return nil // Control frames never stream; keep accumulating.
		}
		return s.finishControlPayload()
	}
	return s.finishDataChunk()
}

// finishControlPayload validates and surfaces a fully-buffered control
// frame (rxBuf[0:rxOff]).
func (s *Session) finishControlPayload() error {
	payload := s.rxBuf[:s.rxOff]

	if s.currentOp == OpcodeClose {
		if len(payload) == 0 {
			s.closeCode = uint16(StatusNoStatusReceived)
		} else {
			code := StatusCode(binary.BigEndian.Uint16(payload))
			if !code.validOnWire() {
				return ErrBadCloseCode
			}
			s.closeCode = uint16(code)
			reason := payload[2:]
			if s.utf8Check && len(reason) > 0 {
				res := validateUTF8Prefix(reason)
				if res.invalid || res.validLen != len(reason) {
					return ErrInvalidUTF8
				}
			}
		}
	}

	s.controlPayload = payload
	s.rxState = rxControlDispatch
	return nil
}

// finishDataChunk decides, after a PayloadStream read, how much of the
// buffered-but-undelivered region rxBuf[rxCursor:rxOff] may safely be
// handed to the caller. For TEXT messages this enforces UTF-8
// well-formedness incrementally: a trailing incomplete sequence is
// withheld (and carried forward) rather than delivered or rejected,
// unless this is provably the end of the message.
func (s *Session) finishDataChunk() error {
	undelivered := s.rxBuf[s.rxCursor:s.rxOff]

	if s.utf8Check && s.currentOp == OpcodeText {
		res := validateUTF8Prefix(undelivered)
		if res.invalid {
			return ErrInvalidUTF8
		}
		if res.validLen < len(undelivered) {
			if s.rxRemaining > 0 && s.rxOff < len(s.rxBuf) {
				// More bytes are still coming for this frame and there
				// is room to accumulate them: don't drain yet.
				return nil
			}
			if s.rxRemaining == 0 && s.continuationOp == opcodeNone {
				return ErrInvalidUTF8
			}
			s.rxDeliverLimit = s.rxCursor + res.validLen
			s.rxState = rxDrain
			return nil
		}
	}

	s.rxDeliverLimit = s.rxOff
	s.rxState = rxDrain
	return nil
}

// driveDrain hands the caller whatever is currently deliverable
// (rxBuf[rxCursor:rxDeliverLimit]) and, once exhausted, decides the
// next state.
func (s *Session) driveDrain(sink rxSink) (RecvResult, error) {
	op := s.currentOp
	avail := s.rxDeliverLimit - s.rxCursor

	var n int
	if avail > 0 {
		switch {
		case sink.dst != nil:
			n = copy(sink.dst, s.rxBuf[s.rxCursor:s.rxDeliverLimit])
		case sink.handler != nil:
			n = avail
			sink.handler(s.rxBuf[s.rxCursor:s.rxDeliverLimit])
		}
		s.rxCursor += n
	}

	final := false
	if s.rxCursor == s.rxDeliverLimit {
		final = s.rxRemaining == 0 && s.continuationOp == opcodeNone
		s.afterDrainExhausted()
	}

	return RecvResult{Opcode: op, N: n, Final: final}, nil
}

// afterDrainExhausted is called once all currently-deliverable bytes
// have been handed to the caller. Anything left in rxBuf beyond
// rxDeliverLimit is an incomplete trailing UTF-8 sequence (at most 3
// bytes) that must be carried forward instead of being delivered.
func (s *Session) afterDrainExhausted() {
	if s.rxDeliverLimit < s.rxOff {
		s.rxCarryLen = copy(s.rxCarry[:], s.rxBuf[s.rxDeliverLimit:s.rxOff])
	}
	s.rxOff = 0
	s.rxCursor = 0
	s.rxDeliverLimit = 0

	if s.rxRemaining > 0 {
		s.rxState = rxPayloadStream
		s.seedCarry()
		return
	}
	s.currentOp = opcodeNone
	s.rxState = rxHeader
}

// unmask reverses the masking applied to client-to-server frames.
// Masking is its own inverse, so this just calls maskInPlace.
func unmask(p []byte, mask *[4]byte, idx *int) {
	maskInPlace(p, mask, idx)
}
