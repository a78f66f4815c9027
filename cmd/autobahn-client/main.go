// Autobahn-client tests this module's WebSocket engine against the
// fuzzing server of the [Autobahn Testsuite].
//
// [Autobahn Testsuite]: https://github.com/crossbario/autobahn-testsuite
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/tzrikka/wsecho/internal/logger"
	"github.com/tzrikka/wsecho/pkg/netadapt"
	"github.com/tzrikka/wsecho/pkg/websocket"
)

const (
	baseURL = "ws://127.0.0.1:9001"
	agent   = "wsecho"
)

func main() {
	n := getCaseCount()
	slog.Info("case count", slog.Int("n", n))

	// Not exercised by this engine (so excluded in the fuzzing server's
	// config):
	//   - 6.4.*: fail-fast on invalid UTF-8 frames that span fragments,
	//   - 12.* and 13.*: WebSocket compression.
	for i := 1; i <= n; i++ {
		runCase(i)
	}

	updateReports()
}

// dial connects to the Autobahn server at wsURL, which must be of the
// form "ws://host:port/path?query".
func dial(wsURL string) (*netadapt.Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", wsURL, err)
	}

	uri := u.Path
	if u.RawQuery != "" {
		uri += "?" + u.RawQuery
	}

	return netadapt.DialAndHandshake(context.Background(), u.Host, u.Host, uri)
}

// getCaseCount retrieves the number of enabled test cases from the
// Autobahn fuzzing server.
func getCaseCount() int {
	conn, err := dial(baseURL + "/getCaseCount")
	if err != nil {
		logger.FatalError("dial error", err)
	}
	defer conn.Close()

	op, data, err := recvWholeMessage(conn.Session)
	if err != nil {
		if err == io.EOF {
			slog.Debug("connection closed")
			return 0
		}
		logger.FatalError("receive error", err)
	}
	if op != websocket.OpcodeText {
		logger.FatalError("unexpected opcode for case count", nil)
	}

	n, err := strconv.Atoi(string(data))
	if err != nil {
		logger.FatalError("invalid test case count", err)
	}
	return n
}

// updateReports instructs the Autobahn fuzzing server to generate or
// update all the HTML and JSON files for all the test-case results.
func updateReports() {
	slog.Info("updating reports")

	url := fmt.Sprintf("%s/updateReports?agent=%s", baseURL, agent)
	conn, err := dial(url)
	if err != nil {
		logger.FatalError("dial error", err)
	}
	conn.Close()
}

func runCase(i int) {
	l := slog.With(slog.Int("case", i))
	l.Info("starting test")

	conn, err := dial(fmt.Sprintf("%s/runCase?case=%d&agent=%s", baseURL, i, agent))
	if err != nil {
		logger.FatalError("dial error", err)
	}
	defer conn.Close()

	// Echo loop: the fuzzing server drives every message exchange for
	// this case, and closes the connection when it's done.
	for {
		op, data, err := recvWholeMessage(conn.Session)
		if err != nil {
			if err == io.EOF {
				l.Debug("connection closed")
				return
			}
			l.Error("receive error", slog.Any("error", err))
			return
		}

		l := l.With(slog.String("opcode", op.String()))
		l.Info("received message", slog.Int("length", len(data)))

		switch op {
		case websocket.OpcodeText:
			err = conn.Session.WriteText(data)
		case websocket.OpcodeBinary:
			err = conn.Session.WriteBinary(data)
		case websocket.OpcodeClose:
			return
		default:
			l.Error("unexpected opcode in data message")
			return
		}

		if err != nil {
			l.Error("echo error", slog.Any("error", err))
			_ = conn.Session.Close(websocket.StatusNormalClosure, nil)
			return
		}
	}
}

// recvWholeMessage reads one complete message (possibly spanning
// several fragments) from sess.
func recvWholeMessage(sess *websocket.Session) (websocket.Opcode, []byte, error) {
	buf := make([]byte, websocket.DefaultBufferSize)
	var data []byte
	var op websocket.Opcode

	for {
		res, err := sess.RecvInto(buf)
		if err != nil {
			return 0, nil, err
		}
		op = res.Opcode
		data = append(data, buf[:res.N]...)
		if res.Final {
			return op, data, nil
		}
	}
}
