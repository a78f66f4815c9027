package main

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tzrikka/wsecho/internal/metrics"
	"github.com/tzrikka/wsecho/pkg/netadapt"
	"github.com/tzrikka/wsecho/pkg/websocket"
)

const readHeaderTimeout = 5 * time.Second

type echoServer struct {
	port         int
	uri          string
	bearerSecret string
	recorder     metrics.Recorder
}

// Run starts an HTTP server whose only route is the configured
// upgrade path, and blocks until it's shut down or fails.
func (s *echoServer) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.uri, s.upgradeHandler)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(s.port)),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log.Info().Int("port", s.port).Str("uri", s.uri).Msg("echo server listening")
	return server.ListenAndServe()
}

func (s *echoServer) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	l := log.With().Str("remote", r.RemoteAddr).Str("uri", r.URL.Path).Logger()

	if s.bearerSecret != "" {
		if _, err := verifyBearerToken(s.bearerSecret, bearerToken(r)); err != nil {
			l.Warn().Err(err).Msg("rejected unauthorized upgrade request")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		l.Error().Msg("response writer does not support hijacking")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	nc, rw, err := hj.Hijack()
	if err != nil {
		l.Error().Err(err).Msg("failed to hijack connection")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	conn := &bufferedConn{Conn: nc, r: rw.Reader}

	wsConn, err := netadapt.Accept(conn, r.Host, r.URL.RequestURI(),
		netadapt.WithAcceptSessionOptions(websocket.WithLogger(slog.Default())),
	)
	if err != nil {
		l.Warn().Err(err).Msg("WebSocket handshake failed")
		_ = conn.Close()
		return
	}
	defer wsConn.Close()

	s.recorder.HandshakeCompleted(time.Now(), wsConn.ID, "server", r.RemoteAddr)
	l = l.With().Str("conn_id", wsConn.ID).Logger()
	l.Info().Msg("WebSocket connection established")

	code, closeErr := echoLoop(wsConn.Session, s.recorder, wsConn.ID)
	s.recorder.SessionClosed(time.Now(), wsConn.ID, code, closeErr)
	if closeErr != nil {
		l.Info().Err(closeErr).Msg("WebSocket connection closed")
	} else {
		l.Info().Msg("WebSocket connection closed")
	}
}

// echoLoop reads whole messages from sess and writes them back
// unchanged, until the peer closes the connection or an error occurs.
// It returns the close code observed (or StatusAbnormalClosure if none)
// and the error that ended the loop, if any.
func echoLoop(sess *websocket.Session, rec metrics.Recorder, connID string) (uint16, error) {
	buf := make([]byte, websocket.DefaultBufferSize)
	var msg []byte

	for {
		res, err := sess.RecvInto(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return uint16(websocket.StatusAbnormalClosure), nil
			}
			return uint16(websocket.StatusAbnormalClosure), err
		}
		msg = append(msg, buf[:res.N]...)
		if !res.Final {
			continue
		}
		rec.FrameReceived(time.Now(), connID, byte(res.Opcode), len(msg))

		switch res.Opcode {
		case websocket.OpcodeClose:
			code := sess.CloseCode()
			_ = sess.Close(websocket.StatusNormalClosure, nil)
			return code, nil
		case websocket.OpcodePing:
			if err := sess.Pong(sess.ControlPayload()); err != nil {
				return uint16(websocket.StatusAbnormalClosure), err
			}
		case websocket.OpcodeText:
			if err := sess.WriteText(msg); err != nil {
				return uint16(websocket.StatusAbnormalClosure), err
			}
			rec.FrameSent(time.Now(), connID, byte(websocket.OpcodeText), len(msg))
		case websocket.OpcodeBinary:
			if err := sess.WriteBinary(msg); err != nil {
				return uint16(websocket.StatusAbnormalClosure), err
			}
			rec.FrameSent(time.Now(), connID, byte(websocket.OpcodeBinary), len(msg))
		}
		if res.Opcode == websocket.OpcodeText || res.Opcode == websocket.OpcodeBinary {
			msg = msg[:0]
		}
	}
}

func bearerToken(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// bufferedConn prepends any bytes net/http already buffered while
// parsing the HTTP request onto the hijacked net.Conn's read side.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	if c.r.Buffered() > 0 {
		return c.r.Read(p)
	}
	return c.Conn.Read(p)
}
