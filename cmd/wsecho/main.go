package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli/v3"

	"github.com/tzrikka/wsecho/internal/logger"
	"github.com/tzrikka/wsecho/internal/metrics"
	"github.com/tzrikka/xdg"
)

const (
	ConfigDirName  = "wsecho"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()
	path := configFile()

	cmd := &cli.Command{
		Name:    "wsecho",
		Usage:   "RFC 6455 WebSocket echo server and client",
		Version: bi.Main.Version,
		Flags:   flags(path),
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "run the echo server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					initLog(cmd.Bool("pretty-log"))
					s := &echoServer{
						port:         cmd.Int("port"),
						uri:          cmd.String("uri"),
						bearerSecret: cmd.String("bearer-token-secret"),
						recorder:     newRecorder(cmd),
					}
					return s.Run()
				},
			},
			{
				Name:  "client",
				Usage: "connect to an echo server and relay stdin/stdout",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					initLog(cmd.Bool("pretty-log"))
					return runClient(ctx, cmd.String("host"), cmd.String("uri"), cmd.Int("port"), cmd.String("bearer-token-secret"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// configFile returns the path to the app's configuration file. It
// also creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logger.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

// newRecorder builds a metrics.Recorder from the --metrics-dir flag,
// or a no-op recorder if it's empty.
func newRecorder(cmd *cli.Command) metrics.Recorder {
	dir := cmd.String("metrics-dir")
	if dir == "" {
		return metrics.NopRecorder{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.FatalError("failed to create metrics directory", err)
	}
	return metrics.NewCSVRecorder(log.Logger, dir+"/"+metrics.DefaultMetricsFileSessions, dir+"/"+metrics.DefaultMetricsFileFrames)
}

// initLog initializes the default slog logger, based on whether
// pretty (human-readable) logging was requested.
func initLog(pretty bool) {
	var handler slog.Handler
	if pretty {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	}

	slog.SetDefault(slog.New(handler))
}
