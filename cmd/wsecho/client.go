package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tzrikka/wsecho/pkg/netadapt"
	"github.com/tzrikka/wsecho/pkg/websocket"
)

// runClient dials the configured server, then echoes whatever it
// reads from stdin as text messages, printing back what the server
// echoes, until stdin is closed or the connection fails.
func runClient(ctx context.Context, host, uri string, port int, bearerSecret string) error {
	var opts []netadapt.DialOption
	if bearerSecret != "" {
		token, err := signBearerToken(bearerSecret, "wsecho-client", 5*time.Minute)
		if err != nil {
			return fmt.Errorf("failed to sign bearer token: %w", err)
		}
		opts = append(opts, netadapt.WithBearerToken(token))
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := netadapt.DialAndHandshake(ctx, addr, host, uri, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Info().Str("conn_id", conn.ID).Str("addr", addr).Msg("connected")

	errCh := make(chan error, 1)
	go func() { errCh <- readLoop(conn.Session) }()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.Session.WriteText(scanner.Bytes()); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	if err := conn.Session.Close(websocket.StatusNormalClosure, nil); err != nil {
		return fmt.Errorf("failed to send close frame: %w", err)
	}
	return <-errCh
}

func readLoop(sess *websocket.Session) error {
	buf := make([]byte, websocket.DefaultBufferSize)
	var msg []byte

	for {
		res, err := sess.RecvInto(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		msg = append(msg, buf[:res.N]...)
		if !res.Final {
			continue
		}

		switch res.Opcode {
		case websocket.OpcodeClose:
			fmt.Fprintf(os.Stderr, "server closed the connection (code %d)\n", sess.CloseCode())
			return nil
		case websocket.OpcodeText, websocket.OpcodeBinary:
			fmt.Println(string(msg))
		}
		msg = msg[:0]
	}
}
