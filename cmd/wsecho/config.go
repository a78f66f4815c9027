package main

import (
	"errors"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultPort is the TCP port the echo server listens on by default.
	DefaultPort = 8080
	// DefaultURI is the HTTP path that must be requested to upgrade a
	// connection to WebSocket.
	DefaultURI = "/echo"
)

// flags defines the CLI flags shared between the server and client
// subcommands. Most of them can also be set through the environment or
// the app's configuration file.
func flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "port",
			Usage: "local TCP port to listen on, or remote port to dial",
			Value: DefaultPort,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_PORT"),
				toml.TOML("wsecho.port", configFilePath),
			),
			Validator: validatePort,
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "server host name to dial (client only; the server listens on all interfaces)",
			Value: "127.0.0.1",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_HOST"),
				toml.TOML("wsecho.host", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "uri",
			Usage: "HTTP path used for the WebSocket upgrade",
			Value: DefaultURI,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_URI"),
				toml.TOML("wsecho.uri", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "bearer-token-secret",
			Usage: "HMAC secret used to sign and verify bearer tokens; empty disables authorization",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_BEARER_TOKEN_SECRET"),
				toml.TOML("wsecho.bearer_token_secret", configFilePath),
			),
		},
		&cli.StringFlag{
			Name:  "metrics-dir",
			Usage: "directory for CSV connection and frame metrics; empty disables metrics",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("WSECHO_METRICS_DIR"),
				toml.TOML("wsecho.metrics_dir", configFilePath),
			),
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
	}
}

func validatePort(p int) error {
	if p < 1 || p > 65535 {
		return errors.New("out of range [1-65535]")
	}
	return nil
}
